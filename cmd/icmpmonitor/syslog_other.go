//go:build windows || plan9

package main

import (
	"errors"

	"github.com/sirupsen/logrus"
)

func attachSyslog(*logrus.Logger) error {
	return errors.New("syslog is not supported on this platform")
}
