// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package errors

const (
	RequestParameterInvalid int = 4001
	InvalidArgument         int = 4017

	InternalError    int = 5000
	InvalidDataError int = 5001

	OpensearchError int = 6003
	NoDataError     int = 6004

	CodeInitializeError = 7001
	CodeLackOfConfig    = 7002

	CodeRemoteServiceError = 8001
)
