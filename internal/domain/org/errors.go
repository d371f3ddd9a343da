package org

import "errors"

var (
	ErrBranchNotFound   = errors.New("branch not found")
	ErrEmployeeNotFound = errors.New("employee not found")
)
