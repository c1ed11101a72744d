package email

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breathewatch/internal/risk"
	"breathewatch/internal/types"
)

type fakeProvider struct {
	configured bool
	msgID      string
	err        error
	sent       []types.SendInput
}

func (f *fakeProvider) Send(_ context.Context, in types.SendInput) (string, error) {
	f.sent = append(f.sent, in)
	return f.msgID, f.err
}
func (f *fakeProvider) IsConfigured() bool { return f.configured }
func (f *fakeProvider) Name() string       { return "fake" }

func newTestChannel(t *testing.T, p *fakeProvider) *Channel {
	t.Helper()
	return NewChannel(ChannelConfig{Provider: p, Renderer: newTestRenderer(t)})
}

func highAlert() Alert {
	return Alert{
		LocationName: "Delhi",
		Assessment:   risk.Assess(types.EnvironmentalSnapshot{TemperatureC: 25, HumidityPct: 50, AirQualityIndex: 4}),
	}
}

func TestDeliver_Sent(t *testing.T) {
	p := &fakeProvider{configured: true, msgID: "msg-1"}
	c := newTestChannel(t, p)

	res, err := c.Deliver(context.Background(), "user@example.com", highAlert())
	require.NoError(t, err)

	assert.Equal(t, "msg-1", res.ProviderMessageID)
	assert.False(t, res.Simulated)

	require.Len(t, p.sent, 1)
	in := p.sent[0]
	assert.Equal(t, "user@example.com", in.To)
	assert.Equal(t, "alerts@breathewatch.app", in.From.Address)
	assert.Equal(t, "Respiratory Risk Alert: High risk in Delhi", in.Subject)
	assert.NotEmpty(t, in.ReferenceID)
	assert.Contains(t, in.BodyHTML, "Poor Air Quality")
}

func TestDeliver_SimulatedWhenUnconfigured(t *testing.T) {
	p := &fakeProvider{configured: false}
	c := newTestChannel(t, p)

	res, err := c.Deliver(context.Background(), "user@example.com", highAlert())
	require.NoError(t, err)

	assert.True(t, res.Simulated)
	assert.True(t, strings.HasPrefix(res.ProviderMessageID, "simulated-"))
	assert.Len(t, p.sent, 1, "stub provider still sees the rendered message")
}

func TestDeliver_SimulatedKeepsStubMessageID(t *testing.T) {
	p := &fakeProvider{configured: false, msgID: "simulated-from-stub"}

	res, err := newTestChannel(t, p).Deliver(context.Background(), "user@example.com", highAlert())
	require.NoError(t, err)
	assert.Equal(t, "simulated-from-stub", res.ProviderMessageID)
}

func TestDeliver_NilProviderSimulates(t *testing.T) {
	c := NewChannel(ChannelConfig{Renderer: newTestRenderer(t)})

	res, err := c.Deliver(context.Background(), "user@example.com", highAlert())
	require.NoError(t, err)
	assert.True(t, res.Simulated)
	assert.False(t, c.IsConfigured())
}

func TestDeliver_ProviderErrorReturnedUnchanged(t *testing.T) {
	providerErr := types.NewAppError(types.ErrCodeEmailPolicyRestricted, "sandbox", nil)
	p := &fakeProvider{configured: true, err: providerErr}

	res, err := newTestChannel(t, p).Deliver(context.Background(), "user@example.com", highAlert())

	assert.Nil(t, res)
	assert.Same(t, providerErr, err)
}
