package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wyckoff-trading-bot/internal/pattern"
)

func levelsContext(c pattern.Candidate) Context {
	return Context{Candidate: c, Config: testValidationConfig()}
}

func TestLevelsSpringPenetration(t *testing.T) {
	v := &LevelsValidator{}
	base := pattern.Candidate{
		Type:             pattern.Spring,
		SupportLevel:     100,
		ResistanceLevel:  110,
		TriggerPrice:     99,
		PenetrationDepth: 0.01,
		RecoveryBars:     2,
	}

	t.Run("clean spring passes", func(t *testing.T) {
		res := v.Validate(levelsContext(base))
		assert.Equal(t, StatusPass, res.Status)
	})

	t.Run("no penetration fails", func(t *testing.T) {
		c := base
		c.PenetrationDepth = 0
		res := v.Validate(levelsContext(c))
		assert.Equal(t, StatusFail, res.Status)
		assert.Contains(t, res.Reason, "never penetrated")
	})

	t.Run("penetration beyond three tolerances fails", func(t *testing.T) {
		c := base
		c.PenetrationDepth = 0.07 // max is 3 * 0.02
		res := v.Validate(levelsContext(c))
		assert.Equal(t, StatusFail, res.Status)
		assert.Contains(t, res.Reason, "range likely broken")
	})

	t.Run("no recovery fails", func(t *testing.T) {
		c := base
		c.RecoveryBars = 0
		res := v.Validate(levelsContext(c))
		assert.Equal(t, StatusFail, res.Status)
		assert.Contains(t, res.Reason, "reclaimed")
	})

	t.Run("slow recovery warns", func(t *testing.T) {
		c := base
		c.RecoveryBars = 5
		res := v.Validate(levelsContext(c))
		assert.Equal(t, StatusWarn, res.Status)
		assert.Contains(t, res.Reason, "5 bars")
	})

	t.Run("missing support level fails", func(t *testing.T) {
		c := base
		c.SupportLevel = 0
		res := v.Validate(levelsContext(c))
		assert.Equal(t, StatusFail, res.Status)
	})
}

func TestLevelsSOSMustClearResistance(t *testing.T) {
	v := &LevelsValidator{}
	c := pattern.Candidate{
		Type:            pattern.SOS,
		SupportLevel:    100,
		ResistanceLevel: 110,
		TriggerPrice:    111,
	}

	assert.Equal(t, StatusPass, v.Validate(levelsContext(c)).Status)

	c.TriggerPrice = 109
	res := v.Validate(levelsContext(c))
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Reason, "did not clear")
}

func TestLevelsLPSRetestTolerance(t *testing.T) {
	v := &LevelsValidator{}
	c := pattern.Candidate{
		Type:            pattern.LPS,
		SupportLevel:    100,
		ResistanceLevel: 110,
	}

	t.Run("retest within tolerance passes", func(t *testing.T) {
		c := c
		c.TriggerPrice = 101 // 1% above support, band is 2 * 0.02
		assert.Equal(t, StatusPass, v.Validate(levelsContext(c)).Status)
	})

	t.Run("retest too far above support fails", func(t *testing.T) {
		c := c
		c.TriggerPrice = 105
		res := v.Validate(levelsContext(c))
		assert.Equal(t, StatusFail, res.Status)
		assert.Contains(t, res.Reason, "retest tolerance")
	})

	t.Run("trigger below support fails", func(t *testing.T) {
		c := c
		c.TriggerPrice = 99
		res := v.Validate(levelsContext(c))
		assert.Equal(t, StatusFail, res.Status)
		assert.Contains(t, res.Reason, "broke support")
	})
}

func TestLevelsUTADPenetratesResistance(t *testing.T) {
	v := &LevelsValidator{}
	c := pattern.Candidate{
		Type:             pattern.UTAD,
		SupportLevel:     100,
		ResistanceLevel:  110,
		TriggerPrice:     111,
		PenetrationDepth: 0.01,
		RecoveryBars:     1,
	}

	assert.Equal(t, StatusPass, v.Validate(levelsContext(c)).Status)

	c.ResistanceLevel = 0
	res := v.Validate(levelsContext(c))
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Reason, "resistance")
}

func TestLevelsStructuralEventsPassThrough(t *testing.T) {
	v := &LevelsValidator{}

	for _, pt := range []pattern.Type{pattern.SC, pattern.AR, pattern.ST} {
		res := v.Validate(levelsContext(pattern.Candidate{Type: pt}))
		assert.Equal(t, StatusPass, res.Status, "pattern %s", pt)
	}
}
