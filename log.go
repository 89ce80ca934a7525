package actionserver

import "github.com/sirupsen/logrus"

// newComponentLogger returns a field-tagged logger for one action name.
func newComponentLogger(action string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"action": action})
}
