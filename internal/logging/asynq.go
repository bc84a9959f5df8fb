package logging

import "fmt"

// AsynqLogger adapts Logger to the asynq.Logger interface
type AsynqLogger struct {
	*Logger
}

func (a AsynqLogger) Debug(args ...interface{}) { a.entry.Debug(fmt.Sprint(args...)) }
func (a AsynqLogger) Info(args ...interface{})  { a.entry.Info(fmt.Sprint(args...)) }
func (a AsynqLogger) Warn(args ...interface{})  { a.entry.Warn(fmt.Sprint(args...)) }
func (a AsynqLogger) Error(args ...interface{}) { a.entry.Error(fmt.Sprint(args...)) }
func (a AsynqLogger) Fatal(args ...interface{}) { a.entry.Fatal(fmt.Sprint(args...)) }
