package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBuildInvoiceWhere(t *testing.T) {
	where, args := buildInvoiceWhere(InvoiceFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	pid := uuid.New()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	where, args = buildInvoiceWhere(InvoiceFilter{PatientID: &pid, Status: StatusPaid, From: &from, To: &to})

	assert.Equal(t, " WHERE patient_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4", where)
	assert.Equal(t, []interface{}{pid, StatusPaid, from, to}, args)
}

func TestBuildInvoiceWhere_StatusOnly(t *testing.T) {
	where, args := buildInvoiceWhere(InvoiceFilter{Status: StatusDraft})
	assert.Equal(t, " WHERE status = $1", where)
	assert.Len(t, args, 1)
}
