package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorDuplicateValue(field string) error {
	return fmt.Errorf("%s already exists", field)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
