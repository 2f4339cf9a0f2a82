package logrus

import (
	"github.com/sirupsen/logrus"

	corelog "github.com/vikyol/awsideman-cache/log"
)

var _ corelog.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f corelog.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f corelog.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f corelog.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f corelog.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }
