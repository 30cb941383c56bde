package calculator

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditrisk-api/internal/models"
)

func newAmortCalc() *AmortizationCalculator {
	return NewAmortizationCalculator(AmortizationCalculatorConfig{})
}

func assertScheduleInvariants(t *testing.T, s *AmortizationSchedule) {
	t.Helper()

	principalSum := decimal.Zero
	for i := range s.Periods {
		principalSum = principalSum.Add(s.Periods[i].Principal)
	}

	diff := principalSum.Sub(s.Principal).Abs()
	tolerance := s.Principal.Mul(decimal.NewFromFloat(1e-6))
	assert.True(t, diff.LessThanOrEqual(tolerance),
		"principal components sum %s should equal principal %s", principalSum, s.Principal)

	final := s.Periods[len(s.Periods)-1]
	assert.True(t, final.Balance.IsZero(), "final balance should be zero, got %s", final.Balance)
}

func TestAmortizeInvariantsAllMethods(t *testing.T) {
	calc := newAmortCalc()
	ctx := context.Background()

	cases := []struct {
		name      string
		principal float64
		rate      float64
		termYears float64
		perYear   int
	}{
		{"monthly 5y", 1_000_000, 5.5, 5, 12},
		{"quarterly 10y", 250_000, 8.25, 10, 4},
		{"annual 3y", 9_999_999.99, 12, 3, 1},
		{"semiannual fractional term", 480_000, 3.1, 7.5, 2},
	}

	for _, method := range []AmortizationMethod{MethodStraightLine, MethodAnnuity, MethodBullet} {
		for _, tc := range cases {
			t.Run(string(method)+"/"+tc.name, func(t *testing.T) {
				s, err := calc.Amortize(ctx,
					decimal.NewFromFloat(tc.principal),
					decimal.NewFromFloat(tc.rate),
					tc.termYears, tc.perYear, method)
				require.NoError(t, err)
				require.Equal(t, int(tc.termYears*float64(tc.perYear)), len(s.Periods))
				assertScheduleInvariants(t, s)
			})
		}
	}
}

func TestAnnuityZeroRatePaymentIsPrincipalOverPeriods(t *testing.T) {
	calc := newAmortCalc()

	s, err := calc.Amortize(context.Background(),
		decimal.NewFromInt(120_000), decimal.Zero, 10, 12, MethodAnnuity)
	require.NoError(t, err)

	expected := decimal.NewFromInt(1000) // 120000 / 120
	for i := range s.Periods {
		assert.True(t, s.Periods[i].Payment.Equal(expected),
			"period %d payment %s", i+1, s.Periods[i].Payment)
		assert.True(t, s.Periods[i].Interest.IsZero())
	}
}

func TestAnnuityConstantPayment(t *testing.T) {
	calc := newAmortCalc()

	s, err := calc.Amortize(context.Background(),
		decimal.NewFromInt(500_000), decimal.NewFromFloat(6), 5, 12, MethodAnnuity)
	require.NoError(t, err)

	first := s.Periods[0].Payment
	// All but the rounding-adjusted final period share the same payment.
	for i := 0; i < len(s.Periods)-1; i++ {
		assert.True(t, s.Periods[i].Payment.Equal(first))
	}
	lastDiff := s.Periods[len(s.Periods)-1].Payment.Sub(first).Abs()
	assert.True(t, lastDiff.LessThan(decimal.NewFromFloat(0.01)),
		"final payment should differ only by rounding, diff %s", lastDiff)
}

func TestStraightLineDecliningInterest(t *testing.T) {
	calc := newAmortCalc()

	s, err := calc.Amortize(context.Background(),
		decimal.NewFromInt(240_000), decimal.NewFromInt(12), 2, 12, MethodStraightLine)
	require.NoError(t, err)

	principalPerPeriod := decimal.NewFromInt(10_000)
	for i := range s.Periods {
		assert.True(t, s.Periods[i].Principal.Equal(principalPerPeriod))
	}
	// First-period interest is on the full balance: 240000 * 1% = 2400.
	assert.True(t, s.Periods[0].Interest.Equal(decimal.NewFromInt(2400)))
	for i := 1; i < len(s.Periods); i++ {
		assert.True(t, s.Periods[i].Interest.LessThan(s.Periods[i-1].Interest))
	}
}

func TestBulletInterestOnOriginalPrincipal(t *testing.T) {
	calc := newAmortCalc()

	s, err := calc.Amortize(context.Background(),
		decimal.NewFromInt(1_000_000), decimal.NewFromInt(6), 1, 12, MethodBullet)
	require.NoError(t, err)

	monthlyInterest := decimal.NewFromInt(5000) // 1,000,000 * 6%/12
	for i := 0; i < len(s.Periods)-1; i++ {
		assert.True(t, s.Periods[i].Interest.Equal(monthlyInterest))
		assert.True(t, s.Periods[i].Principal.IsZero())
		assert.True(t, s.Periods[i].Balance.Equal(decimal.NewFromInt(1_000_000)))
	}
	last := s.Periods[len(s.Periods)-1]
	assert.True(t, last.Principal.Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, last.Interest.Equal(monthlyInterest))
	assert.True(t, last.Payment.Equal(decimal.NewFromInt(1_005_000)))
}

func TestAmortizeInvalidInputs(t *testing.T) {
	calc := newAmortCalc()
	ctx := context.Background()
	principal := decimal.NewFromInt(1000)
	rate := decimal.NewFromInt(5)

	_, err := calc.Amortize(ctx, principal, rate, 0, 12, MethodAnnuity)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	_, err = calc.Amortize(ctx, principal, rate, -1, 12, MethodAnnuity)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	_, err = calc.Amortize(ctx, principal, rate, 5, 0, MethodAnnuity)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	_, err = calc.Amortize(ctx, decimal.Zero, rate, 5, 12, MethodAnnuity)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	_, err = calc.Amortize(ctx, principal, rate, 5, 12, AmortizationMethod("balloon"))
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	// 2000 years of monthly periods blows the period cap.
	_, err = calc.Amortize(ctx, principal, rate, 2000, 12, MethodAnnuity)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestCompareMethods(t *testing.T) {
	calc := newAmortCalc()

	comparisons, err := calc.CompareMethods(context.Background(),
		decimal.NewFromInt(1_000_000), decimal.NewFromInt(5), 5, 12)
	require.NoError(t, err)
	require.Len(t, comparisons, 3)

	byMethod := make(map[AmortizationMethod]MethodComparison, 3)
	for _, c := range comparisons {
		byMethod[c.Method] = c
	}

	// Bullet carries the full balance the whole term, so it accrues the most
	// interest; annuity holds the balance longer than straight-line.
	assert.True(t, byMethod[MethodBullet].TotalInterest.GreaterThan(byMethod[MethodAnnuity].TotalInterest))
	assert.True(t, byMethod[MethodAnnuity].TotalInterest.GreaterThan(byMethod[MethodStraightLine].TotalInterest))

	// Bullet's max payment is the balloon payment.
	assert.True(t, byMethod[MethodBullet].MaxPayment.GreaterThan(decimal.NewFromInt(1_000_000)))
}
