// internal/bus/bus_test.go
package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	payload := EncodePayload(42, 1337)
	assert.Equal(t, "42:1337", payload)

	n, err := ParsePayload(ChanTableCmd, payload)
	require.NoError(t, err)
	assert.Equal(t, ChanTableCmd, n.Channel)
	assert.Equal(t, int64(42), n.TableID)
	assert.Equal(t, int64(1337), n.RowID)
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	for _, payload := range []string{"", "42", "42:", ":7", "a:b", "42:7:9"} {
		_, err := ParsePayload(ChanTableMsg, payload)
		assert.Error(t, err, "payload %q", payload)
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"table_cmd"`, quoteIdent("table_cmd"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}
