package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// LogForwardingFormatter wraps a logrus.Formatter, forwarding every entry to
// New Relic and decorating the local output with linking metadata. Entries
// with a context carrying a transaction are attached to that transaction.
type LogForwardingFormatter struct {
	app  *newrelic.Application
	next logrus.Formatter
}

func NewLogForwardingFormatter(app *newrelic.Application, next logrus.Formatter) *LogForwardingFormatter {
	return &LogForwardingFormatter{app: app, next: next}
}

func (f *LogForwardingFormatter) Format(e *logrus.Entry) ([]byte, error) {
	local, err := f.next.Format(e)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(bytes.TrimRight(local, "\n"))

	record := newrelic.LogData{
		Severity: e.Level.String(),
		Message:  forwardedMessage(e),
	}

	var txn *newrelic.Transaction
	if e.Context != nil {
		txn = newrelic.FromContext(e.Context)
	}

	if txn != nil {
		txn.RecordLog(record)
		err = newrelic.EnrichLog(buf, newrelic.FromTxn(txn))
	} else {
		f.app.RecordLog(record)
		err = newrelic.EnrichLog(buf, newrelic.FromApp(f.app))
	}
	if err != nil {
		return nil, err
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// forwardedMessage folds the entry's fields into the message, since New Relic
// log records only carry a severity and a message.
func forwardedMessage(e *logrus.Entry) string {
	if len(e.Data) == 0 {
		return e.Message
	}

	errString := "<nil>"
	fields := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		if k == logrus.ErrorKey {
			if typed, ok := v.(error); ok {
				errString = fmt.Sprintf("%q", typed.Error())
			}
			continue
		}
		fields[k] = v
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return e.Message
	}
	return fmt.Sprintf("message=%q, error=%s, data=%s", e.Message, errString, encoded)
}
