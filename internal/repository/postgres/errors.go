package postgres

import (
	"errors"

	"github.com/lib/pq"

	"melodia-chat/internal/domain"
)

// translateError wraps a driver failure as a service-kind error. PostgreSQL
// error codes are preserved in the message so operators can distinguish
// connectivity problems from schema drift in the logs.
func translateError(message string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return domain.ServiceError(message+" (pq "+string(pqErr.Code)+")", err)
	}
	return domain.ServiceError(message, err)
}
