package structural

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	srv.Start()
	require.True(t, srv.ReadyForConnections(3*time.Second), "nats not ready")
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

// stubEngine answers locally.
type stubEngine struct{ damageErr error }

func (stubEngine) Hazard(_ context.Context, in HazardInput) (HazardOutput, error) {
	return HazardOutput{Weight: float64(len(in.Elevations)), FrameObjNames: []string{in.SoilClass}}, nil
}

func (stubEngine) Response(_ context.Context, in ResponseInput) (ResponseOutput, error) {
	return ResponseOutput{BRD: []float64{in.Gravity}}, nil
}

func (s stubEngine) Damage(_ context.Context, in DamageInput) (DamageOutput, error) {
	if s.damageErr != nil {
		return DamageOutput{}, s.damageErr
	}
	return DamageOutput{Cost: []float64{1}}, nil
}

func TestNATSEngineRoundTrip(t *testing.T) {
	nc := startTestNATS(t)
	subs, err := Serve(nc, "", "engine-workers", stubEngine{})
	require.NoError(t, err)
	require.Len(t, subs, 3)

	eng := NewNATSEngine(nc, "", ClientOpts{Retry: fastRetry})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h, err := eng.Hazard(ctx, HazardInput{Elevations: []float64{0, 10, 20}, SoilClass: "B"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, h.Weight)
	assert.Equal(t, []string{"B"}, h.FrameObjNames)

	r, err := eng.Response(ctx, ResponseInput{Gravity: DefaultGravity})
	require.NoError(t, err)
	assert.Equal(t, []float64{386}, r.BRD)
}

func TestNATSEngineRemoteFailure(t *testing.T) {
	nc := startTestNATS(t)
	_, err := Serve(nc, "test.engine", "", stubEngine{damageErr: errors.New("cost tables missing")})
	require.NoError(t, err)

	eng := NewNATSEngine(nc, "test.engine", ClientOpts{Retry: fastRetry})
	_, err = eng.Damage(context.Background(), DamageInput{})
	var me *ModuleError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "cost tables missing", me.Msg)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "resilience.engine.hazard", Subject("", ModuleHazard))
	assert.Equal(t, "lab.engine.damage", Subject("lab.engine", ModuleDamage))
}
