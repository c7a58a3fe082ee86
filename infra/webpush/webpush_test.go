package webpush

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/domtech/lifeline/core/push"
)

func TestClassifyStatus(t *testing.T) {
	assert.NoError(t, classifyStatus(http.StatusCreated))
	assert.NoError(t, classifyStatus(http.StatusOK))

	gone := classifyStatus(http.StatusGone)
	assert.True(t, push.IsGone(gone))
	notFound := classifyStatus(http.StatusNotFound)
	assert.True(t, push.IsGone(notFound), "404 means the subscription is dead")

	tooMany := classifyStatus(http.StatusTooManyRequests)
	assert.Error(t, tooMany)
	assert.False(t, push.IsGone(tooMany))
	server := classifyStatus(http.StatusInternalServerError)
	assert.Error(t, server)
	assert.False(t, push.IsGone(server))
}

func TestNewSenderValidation(t *testing.T) {
	_, err := NewSender(Config{})
	assert.Error(t, err)

	s, err := NewSender(Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"})
	assert.NoError(t, err)
	assert.Equal(t, 30, s.cfg.TTLSeconds, "TTL defaults when unset")
}
