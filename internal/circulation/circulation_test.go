package circulation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"lendinglibrary/internal/chaos"
	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/store"
	"lendinglibrary/internal/store/memory"
)

var fixedNow = time.Date(2024, time.March, 10, 15, 30, 0, 0, time.UTC)

type fixture struct {
	svc    Service
	store  store.Store
	reader *sdkmetric.ManualReader
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	svc, err := NewService(st,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithClock(func() time.Time { return fixedNow }),
		WithMeter(provider.Meter("test")),
	)
	require.NoError(t, err)
	return &fixture{svc: svc, store: st, reader: reader}
}

func (f *fixture) member(t *testing.T) domain.Member {
	t.Helper()
	m := domain.Member{Username: "reader", LoanIDs: []int64{}}
	require.NoError(t, f.store.Members().Save(context.Background(), &m))
	return m
}

func (f *fixture) book(t *testing.T) domain.Book {
	t.Helper()
	b := domain.Book{Title: "Kindred", AuthorID: 1}
	require.NoError(t, f.store.Books().Save(context.Background(), &b))
	return b
}

// seedLoans writes loans straight into the store, bypassing the mirror.
func (f *fixture) seedLoans(t *testing.T, memberID, bookID int64, n int) {
	t.Helper()
	for range n {
		l := domain.Loan{MemberID: memberID, BookID: bookID}
		require.NoError(t, f.store.Loans().Save(context.Background(), &l))
	}
}

func (f *fixture) storedMember(t *testing.T, id int64) domain.Member {
	t.Helper()
	m, err := f.store.Members().Get(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (f *fixture) loanCount(t *testing.T) int {
	t.Helper()
	loans, err := f.store.Loans().List(context.Background())
	require.NoError(t, err)
	return len(loans)
}

func (f *fixture) counter(t *testing.T, name string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				reason, _ := dp.Attributes.Value(attribute.Key("reason"))
				out[reason.AsString()] += dp.Value
			}
		}
	}
	return out
}

func dateRef(y int, m time.Month, d int) *domain.Date {
	return lo.ToPtr(domain.NewDate(y, m, d))
}

func TestCreateLoanWithDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	m := f.member(t)
	b := f.book(t)

	loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
	require.NoError(t, err)

	assert.NotZero(t, loan.ID)
	assert.Equal(t, m.ID, loan.MemberID)
	assert.Equal(t, b.ID, loan.BookID)
	assert.Equal(t, "2024-03-10", loan.LendDate.String())
	assert.Equal(t, "2024-03-17", loan.ReturnDate.String())

	assert.Equal(t, []int64{loan.ID}, f.storedMember(t, m.ID).LoanIDs)

	stored, err := f.svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan, stored)

	assert.Equal(t, map[string]int64{"": 1}, f.counter(t, "library.loans.created"))
}

func TestCreateLoanDates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	m := f.member(t)
	b := f.book(t)

	t.Run("return date follows the given lend date", func(t *testing.T) {
		loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID, LendDate: dateRef(2024, time.February, 25)})
		require.NoError(t, err)
		assert.Equal(t, "2024-02-25", loan.LendDate.String())
		assert.Equal(t, "2024-03-03", loan.ReturnDate.String())
	})

	t.Run("explicit dates are kept", func(t *testing.T) {
		loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{
			MemberID:   m.ID,
			BookID:     b.ID,
			LendDate:   dateRef(2024, time.January, 1),
			ReturnDate: dateRef(2024, time.January, 31),
		})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01", loan.LendDate.String())
		assert.Equal(t, "2024-01-31", loan.ReturnDate.String())
	})

	t.Run("return date without lend date", func(t *testing.T) {
		loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID, ReturnDate: dateRef(2024, time.April, 1)})
		require.NoError(t, err)
		assert.Equal(t, "2024-03-10", loan.LendDate.String())
		assert.Equal(t, "2024-04-01", loan.ReturnDate.String())
	})
}

func TestLendDateUsesClockLocation(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	f := newFixture(t, st)

	tokyo := time.FixedZone("JST", 9*60*60)
	svc, err := NewService(st,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithClock(func() time.Time { return time.Date(2024, time.March, 10, 23, 30, 0, 0, time.UTC).In(tokyo) }),
	)
	require.NoError(t, err)

	loan, err := svc.CreateLoan(ctx, domain.LoanRequest{MemberID: f.member(t).ID, BookID: f.book(t).ID})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", loan.LendDate.String())
}

func TestCreateLoanLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	m := f.member(t)
	b := f.book(t)

	f.seedLoans(t, m.ID, b.ID, domain.MaxActiveLoans)
	before := f.storedMember(t, m.ID)

	_, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
	assert.ErrorIs(t, err, domain.ErrLoanLimitExceeded)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, domain.MaxActiveLoans, f.loanCount(t))
	assert.Equal(t, before, f.storedMember(t, m.ID))
	assert.Equal(t, map[string]int64{"loan_limit": 1}, f.counter(t, "library.loans.rejected"))
}

func TestLimitCountsLoansNotMirror(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	b := f.book(t)

	t.Run("full mirror, no loans", func(t *testing.T) {
		m := domain.Member{Username: "stale", LoanIDs: []int64{91, 92, 93, 94, 95, 96}}
		require.NoError(t, f.store.Members().Save(ctx, &m))

		loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
		require.NoError(t, err)
		assert.Equal(t, append([]int64{91, 92, 93, 94, 95, 96}, loan.ID), f.storedMember(t, m.ID).LoanIDs)
	})

	t.Run("empty mirror, five loans", func(t *testing.T) {
		m := f.member(t)
		f.seedLoans(t, m.ID, b.ID, 5)

		_, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
		assert.ErrorIs(t, err, domain.ErrLoanLimitExceeded)
	})
}

func TestCreateLoanCheckOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	b := f.book(t)

	t.Run("missing member wins over missing book", func(t *testing.T) {
		_, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: 404, BookID: 405})
		assert.EqualError(t, err, "Member not found with id 404")
	})

	t.Run("limit wins over missing book", func(t *testing.T) {
		m := f.member(t)
		f.seedLoans(t, m.ID, b.ID, 5)

		_, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: 405})
		assert.ErrorIs(t, err, domain.ErrLoanLimitExceeded)
	})

	t.Run("missing book under the limit", func(t *testing.T) {
		m := f.member(t)
		before := f.loanCount(t)

		_, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: 405})
		assert.EqualError(t, err, "Book not found with id 405")
		assert.Equal(t, before, f.loanCount(t))
		assert.Equal(t, []int64{}, f.storedMember(t, m.ID).LoanIDs)
	})

	assert.Equal(t, map[string]int64{
		"member_not_found": 1,
		"loan_limit":       1,
		"book_not_found":   1,
	}, f.counter(t, "library.loans.rejected"))
}

func TestUpdateLoan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	ana := f.member(t)
	bo := f.member(t)
	b := f.book(t)

	loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: ana.ID, BookID: b.ID})
	require.NoError(t, err)

	t.Run("missing loan", func(t *testing.T) {
		_, err := f.svc.UpdateLoan(ctx, 404, domain.LoanRequest{MemberID: 405, BookID: 406})
		assert.True(t, domain.IsNotFoundOf(err, domain.KindLoan))
	})

	t.Run("missing member before missing book", func(t *testing.T) {
		_, err := f.svc.UpdateLoan(ctx, loan.ID, domain.LoanRequest{MemberID: 405, BookID: 406})
		assert.True(t, domain.IsNotFoundOf(err, domain.KindMember))
	})

	t.Run("missing book", func(t *testing.T) {
		_, err := f.svc.UpdateLoan(ctx, loan.ID, domain.LoanRequest{MemberID: ana.ID, BookID: 406})
		assert.True(t, domain.IsNotFoundOf(err, domain.KindBook))
	})

	t.Run("moves the loan without touching mirrors", func(t *testing.T) {
		updated, err := f.svc.UpdateLoan(ctx, loan.ID, domain.LoanRequest{MemberID: bo.ID, BookID: b.ID})
		require.NoError(t, err)

		assert.Equal(t, domain.Loan{ID: loan.ID, MemberID: bo.ID, BookID: b.ID}, *updated, "no date defaults on update")
		assert.Equal(t, []int64{loan.ID}, f.storedMember(t, ana.ID).LoanIDs)
		assert.Equal(t, []int64{}, f.storedMember(t, bo.ID).LoanIDs)

		mine, err := f.svc.MemberLoans(ctx, bo.ID)
		require.NoError(t, err)
		assert.Len(t, mine, 1)
	})
}

func TestDeleteLoan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	m := f.member(t)
	b := f.book(t)

	first, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
	require.NoError(t, err)
	second, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteLoan(ctx, first.ID))

	assert.Equal(t, []int64{second.ID}, f.storedMember(t, m.ID).LoanIDs)
	_, err = f.svc.GetLoan(ctx, first.ID)
	assert.True(t, domain.IsNotFoundOf(err, domain.KindLoan))

	err = f.svc.DeleteLoan(ctx, first.ID)
	assert.EqualError(t, err, fmt.Sprintf("Loan not found with id %d", first.ID))
}

func TestDeleteLoanOfMissingMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	m := f.member(t)
	b := f.book(t)

	loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
	require.NoError(t, err)
	require.NoError(t, f.store.Members().Delete(ctx, m.ID))

	err = f.svc.DeleteLoan(ctx, loan.ID)
	assert.True(t, domain.IsNotFoundOf(err, domain.KindMember))

	_, err = f.svc.GetLoan(ctx, loan.ID)
	assert.NoError(t, err, "loan survives a failed delete")
}

func TestMemberLoans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	m := f.member(t)
	other := f.member(t)
	b := f.book(t)

	f.seedLoans(t, other.ID, b.ID, 2)
	loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
	require.NoError(t, err)

	mine, err := f.svc.MemberLoans(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Loan{*loan}, mine)

	_, err = f.svc.MemberLoans(ctx, 404)
	assert.True(t, domain.IsNotFoundOf(err, domain.KindMember))
}

// A member at four loans races several requests: exactly one may win.
func TestConcurrentCreateRespectsLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	m := f.member(t)
	b := f.book(t)
	f.seedLoans(t, m.ID, b.ID, domain.MaxActiveLoans-1)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
		}()
	}
	wg.Wait()

	succeeded := lo.CountBy(errs, func(err error) bool { return err == nil })
	assert.Equal(t, 1, succeeded)
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrLoanLimitExceeded)
		}
	}

	held, err := f.store.Loans().FindByMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, held, domain.MaxActiveLoans)
}

func TestCreateLoanRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	st := chaos.Wrap(memory.New(), chaos.WithConflicts(2))
	f := newFixture(t, st)
	m := f.member(t)
	b := f.book(t)

	loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: m.ID, BookID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Injected())
	assert.Equal(t, 1, f.loanCount(t))
	assert.Equal(t, []int64{loan.ID}, f.storedMember(t, m.ID).LoanIDs)
}

func TestScenarioFreshMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	for range 7 {
		f.member(t)
	}
	for range 2 {
		f.book(t)
	}
	b3 := f.book(t)
	require.Equal(t, int64(3), b3.ID)

	loan, err := f.svc.CreateLoan(ctx, domain.LoanRequest{MemberID: 7, BookID: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(7), loan.MemberID)
	assert.Equal(t, int64(3), loan.BookID)
	assert.Equal(t, domain.DateOf(fixedNow), *loan.LendDate)
	assert.Equal(t, domain.DateOf(fixedNow).AddDays(7), *loan.ReturnDate)
	member := f.storedMember(t, 7)
	assert.True(t, member.HasLoan(loan.ID))
}
