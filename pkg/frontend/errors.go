package frontend

import (
	"fmt"
	"strings"
)

// SyntaxError is one recorded parse diagnostic.
type SyntaxError struct {
	File    string
	Pos     Pos
	Token   Token
	Message string
}

func (e *SyntaxError) Error() string {
	loc := e.Pos.String()
	if e.File != "" {
		loc = e.File + ":" + loc
	}
	return fmt.Sprintf("%s: %s (near %s)", loc, e.Message, e.Token)
}

// ErrorList accumulates syntax errors so one run reports all of them.
type ErrorList struct {
	Errors []*SyntaxError
}

func (el *ErrorList) Add(err *SyntaxError) {
	el.Errors = append(el.Errors, err)
}

func (el *ErrorList) Count() int {
	return len(el.Errors)
}

func (el *ErrorList) Error() string {
	if len(el.Errors) == 1 {
		return el.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d syntax errors:", len(el.Errors))
	for _, err := range el.Errors {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// ToError returns nil if the list is empty, otherwise the list itself.
func (el *ErrorList) ToError() error {
	if len(el.Errors) == 0 {
		return nil
	}
	return el
}

// SetFile stamps every error with the source file name.
func (el *ErrorList) SetFile(name string) {
	for _, err := range el.Errors {
		err.File = name
	}
}
