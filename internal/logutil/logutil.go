// Package logutil builds the loggers used by the command line tools.
package logutil

import (
	"bytes"
	"io/ioutil"
	"log/syslog"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/skycoin/skycoin/src/util/logging"
)

// DefaultDebugLevel maps to logrus.InfoLevel.
const DefaultDebugLevel = 3

// ErrInvalidDebugLevel is returned for a debug level outside [0, 5].
var ErrInvalidDebugLevel = errors.New("debug level must be between 0 and 5")

var debugLevels = []logrus.Level{
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
	logrus.DebugLevel,
	logrus.TraceLevel,
}

// LevelFromDebug converts a numeric debug level (0 fatal .. 5 trace) to a logrus.Level.
func LevelFromDebug(debug int) (logrus.Level, error) {
	if debug < 0 || debug >= len(debugLevels) {
		return logrus.InfoLevel, errors.Wrapf(ErrInvalidDebugLevel, "got %d", debug)
	}
	return debugLevels[debug], nil
}

// TaggedFormatter prepends a tag to log records
type TaggedFormatter struct {
	tag []byte
	*logging.TextFormatter
}

// Format executes formatting of TaggedFormatter
func (tf *TaggedFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data, err := tf.TextFormatter.Format(entry)
	if len(tf.tag) == 0 {
		return data, err
	}
	return bytes.Join([][]byte{tf.tag, data}, []byte(" ")), err
}

// NewTaggedMasterLogger creates MasterLogger that prepends records with tag
func NewTaggedMasterLogger(tag string, level logrus.Level) *logging.MasterLogger {
	return &logging.MasterLogger{
		Logger: &logrus.Logger{
			Out: os.Stderr,
			Formatter: &TaggedFormatter{
				tag: []byte(tag),
				TextFormatter: &logging.TextFormatter{
					AlwaysQuoteStrings: true,
					QuoteEmptyFields:   true,
					FullTimestamp:      true,
					ForceFormatting:    true,
					TimestampFormat:    time.StampMicro,
				},
			},
			Hooks: make(logrus.LevelHooks),
			Level: level,
		},
	}
}

// AttachSyslog forwards records of ml to the syslog daemon at addr and
// silences its regular output.
func AttachSyslog(ml *logging.MasterLogger, addr, tag string) error {
	hook, err := logrus_syslog.NewSyslogHook("udp", addr, syslog.LOG_INFO, tag)
	if err != nil {
		return errors.Wrap(err, "unable to connect to syslog daemon")
	}

	ml.AddHook(hook)
	ml.Out = ioutil.Discard
	return nil
}
