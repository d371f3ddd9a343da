package attendance

import "errors"

var (
	ErrInvalidStatus    = errors.New("invalid attendance status")
	ErrInvalidLeaveType = errors.New("invalid leave type")
	ErrInvalidArrival   = errors.New("arrival time must be HH:MM")
	ErrNegativeAmount   = errors.New("amounts must not be negative")
	ErrTooManyShifts    = errors.New("extraShiftsWorked exceeds the daily maximum")
	ErrFutureDate       = errors.New("log date cannot be in the future")
	ErrNotOnBranch      = errors.New("employee is not active on this branch")
	ErrInvalidCSV       = errors.New("invalid csv payload")
)
