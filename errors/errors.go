package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrSessionClosed     = fmt.Errorf("session closed")
	ErrSlowConsumer      = fmt.Errorf("outbound queue full")
	ErrInvalidCredential = fmt.Errorf("invalid credential")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
)
