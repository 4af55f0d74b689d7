package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bordereau/internal/events"
	"bordereau/internal/signature"
)

func TestMemoryPublisher(t *testing.T) {
	p := events.NewMemoryPublisher()
	signedAt := time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)

	first := events.NewSignatureRecorded("BSDASRI", "DASRI-1", signature.Emission,
		signature.Record{Author: "Dr Martin", Date: signedAt}, 2)
	second := events.NewSignatureRecorded("BSDASRI", "DASRI-1", signature.Transport,
		signature.Record{Author: "J. Dupont", Date: signedAt.Add(time.Hour)}, 3)
	require.NoError(t, p.PublishSignature(context.Background(), first))
	require.NoError(t, p.PublishSignature(context.Background(), second))

	got := p.Events()
	require.Len(t, got, 2)
	assert.Equal(t, signature.Emission, got[0].Stage)
	assert.Equal(t, "Dr Martin", got[0].Author)
	assert.Equal(t, signature.Transport, got[1].Stage)
	assert.NotEqual(t, got[0].ID, got[1].ID)

	got[0].Author = "tampered"
	assert.Equal(t, "Dr Martin", p.Events()[0].Author)
}

func TestNewKafkaPublisherNeedsBrokers(t *testing.T) {
	_, err := events.NewKafkaPublisher(nil)
	assert.Error(t, err)
}
