package ldap

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// LogSubsystem is the tflog subsystem for LDAP transport logging.
const LogSubsystem = "ldap"

// LogOperation runs fn and logs its start, duration and outcome.
func LogOperation(ctx context.Context, subsystem, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, subsystem, "Starting operation", SanitizeFields(fields))

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		tflog.SubsystemError(ctx, subsystem, "Operation failed", SanitizeFields(fields))
	} else {
		tflog.SubsystemDebug(ctx, subsystem, "Operation completed successfully", SanitizeFields(fields))
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(ctx context.Context, subsystem string, operation string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["error"] = err.Error()

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		fields["ldap_result_code"] = resultErr.ResultCode
		if resultErr.MatchedDN != "" {
			fields["ldap_matched_dn"] = resultErr.MatchedDN
		}
		if resultErr.Err != nil {
			fields["ldap_diagnostic_message"] = resultErr.Err.Error()
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", SanitizeFields(fields))
}

var sensitiveKeys = map[string]bool{
	"password":    true,
	"passwd":      true,
	"secret":      true,
	"token":       true,
	"key":         true,
	"private_key": true,
	"credential":  true,
	"credentials": true,
}

// SanitizeFields returns a copy of fields with credentials redacted.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsAny(strings.ToLower(str), "password=", "passwd=", "secret=", "token=") {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// LogResourceOperation logs entry to a Terraform resource operation and
// returns a function that logs its exit.
func LogResourceOperation(ctx context.Context, resource, operation string, fields map[string]any) func(error) {
	return logFrameworkOperation(ctx, "resource", resource, operation, fields)
}

// LogDataSourceOperation is LogResourceOperation for data sources.
func LogDataSourceOperation(ctx context.Context, dataSource, operation string, fields map[string]any) func(error) {
	return logFrameworkOperation(ctx, "data_source", dataSource, operation, fields)
}

func logFrameworkOperation(ctx context.Context, kind, name, operation string, fields map[string]any) func(error) {
	start := time.Now()

	entryFields := make(map[string]any, len(fields)+2)
	maps.Copy(entryFields, fields)
	entryFields[kind] = name
	entryFields["operation"] = operation

	tflog.SubsystemDebug(ctx, "provider", "Starting "+strings.ReplaceAll(kind, "_", " ")+" operation", SanitizeFields(entryFields))

	return func(err error) {
		exitFields := maps.Clone(entryFields)
		exitFields["duration_ms"] = time.Since(start).Milliseconds()
		exitFields["has_error"] = err != nil

		if err != nil {
			exitFields["error"] = err.Error()
			tflog.SubsystemError(ctx, "provider", "Operation failed", SanitizeFields(exitFields))
			return
		}
		tflog.SubsystemDebug(ctx, "provider", "Operation completed", SanitizeFields(exitFields))
	}
}
