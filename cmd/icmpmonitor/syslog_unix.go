//go:build !windows && !plan9

package main

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

func attachSyslog(logger *logrus.Logger) error {
	hook, err := lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, "icmpmonitor")
	if err != nil {
		return err
	}
	logger.AddHook(hook)
	return nil
}
