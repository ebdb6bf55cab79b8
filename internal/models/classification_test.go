package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassificationJSONKeys(t *testing.T) {
	c := Classification{Grass: 62.5, Dirt: 20, Other: 17.5}

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pasto":62.5,"tierra":20,"otros":17.5}`, string(data))

	c.Resolution = FormatResolution(640, 480)
	c.ProcessingTime = 0.25
	c.Adjustments = []string{"blur"}
	data, err = json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pasto":62.5,"tierra":20,"otros":17.5,"resolucion":"640x480","tiempo_procesamiento":0.25,"ajustes":["blur"]}`, string(data))

	assert.Equal(t, Classification{Grass: 62.5, Dirt: 20, Other: 17.5}, c.WithoutDiagnostics())
	assert.InDelta(t, 100, c.Sum(), 1e-9)
}

func TestNewErrorResult(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("x", 3600))
	r := NewErrorResult(errors.New("bad line"), at)

	assert.Equal(t, "bad line", r.Error)
	assert.Equal(t, "2024-05-01T11:30:00Z", r.Timestamp)
}
