// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("CAMREC_T_STR", "value")
	t.Setenv("CAMREC_T_INT", "42")
	t.Setenv("CAMREC_T_BAD_INT", "forty-two")
	t.Setenv("CAMREC_T_UINT", "7")
	t.Setenv("CAMREC_T_FLOAT", "29.97")
	t.Setenv("CAMREC_T_DUR", "250ms")
	t.Setenv("CAMREC_T_BOOL", "YES")
	t.Setenv("CAMREC_T_BAD_BOOL", "maybe")
	t.Setenv("CAMREC_T_EMPTY", "")

	assert.Equal(t, "value", ParseString("CAMREC_T_STR", "d"))
	assert.Equal(t, "d", ParseString("CAMREC_T_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("CAMREC_T_UNSET", "d"))
	assert.Equal(t, 42, ParseInt("CAMREC_T_INT", 1))
	assert.Equal(t, 1, ParseInt("CAMREC_T_BAD_INT", 1))
	assert.Equal(t, uint64(7), ParseUint("CAMREC_T_UINT", 0))
	assert.InDelta(t, 29.97, ParseFloat("CAMREC_T_FLOAT", 0), 1e-9)
	assert.Equal(t, 250*time.Millisecond, ParseDuration("CAMREC_T_DUR", time.Second))
	assert.True(t, ParseBool("CAMREC_T_BOOL", false))
	assert.True(t, ParseBool("CAMREC_T_BAD_BOOL", true))
}

func TestSensitive(t *testing.T) {
	assert.True(t, sensitive("CAMREC_REDIS_PASSWORD"))
	assert.False(t, sensitive("CAMREC_REDIS_ADDR"))
}
