package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// RecordID records the notification record identifier under "record_id".
func RecordID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("record_id", id)
}

// NotificationType records the registry type under "notification_type".
func NotificationType(typ string) slog.Attr {
	return slog.String("notification_type", typ)
}

// Channel records the delivery channel under "channel".
func Channel(ch any) slog.Attr {
	return slog.Any("channel", ch)
}

// Status records a record status under "status".
func Status(s any) slog.Attr {
	return slog.Any("status", s)
}

// WorkerID records the dispatcher worker identifier under "worker_id".
func WorkerID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("worker_id", id)
}

// TenantID records the tenant under "tenant_id".
// If id is nil, it returns an empty Attr.
func TenantID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("tenant_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// Attempts records the attempt counter and its ceiling under "attempts".
func Attempts(n, max int) slog.Attr {
	return Group("attempts", slog.Int("n", n), slog.Int("max", max))
}

// Locale records the resolved locale and its source.
func Locale(locale string, source any) slog.Attr {
	return Group("locale", slog.String("tag", locale), slog.Any("source", source))
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
