package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
	"creditrisk-api/internal/ratings"
)

// MigrationDirection classifies a rating change between two snapshots.
type MigrationDirection string

const (
	MigrationUpgrade   MigrationDirection = "Upgrade"
	MigrationDowngrade MigrationDirection = "Downgrade"
	MigrationStable    MigrationDirection = "Stable"
)

// MigrationRecord is the classified rating change of one loan between its
// two most recent snapshots. NotchChange is current rank minus previous
// rank: positive values are downgrades.
type MigrationRecord struct {
	LoanID         string             `json:"loan_id"`
	PreviousRating string             `json:"previous_rating"`
	CurrentRating  string             `json:"current_rating"`
	PreviousDate   time.Time          `json:"previous_date"`
	CurrentDate    time.Time          `json:"current_date"`
	Direction      MigrationDirection `json:"direction"`
	NotchChange    int                `json:"notch_change"`
	FallenAngel    bool               `json:"fallen_angel"`
	RisingStar     bool               `json:"rising_star"`
}

// TransitionMatrix is a |ratings| x |ratings| count matrix. Rows index the
// previous rating, columns the current one; the diagonal holds stable
// counts.
type TransitionMatrix struct {
	Ratings []string `json:"ratings"`
	Counts  [][]int  `json:"counts"`
}

// Count returns the transitions observed from one rating to another.
func (m *TransitionMatrix) Count(from, to string) int {
	fi, ti := -1, -1
	for i, r := range m.Ratings {
		if r == from {
			fi = i
		}
		if r == to {
			ti = i
		}
	}
	if fi < 0 || ti < 0 {
		return 0
	}
	return m.Counts[fi][ti]
}

// TimelinePoint counts migrations between one consecutive pair of snapshot
// dates across the whole history.
type TimelinePoint struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Upgrades    int       `json:"upgrades"`
	Downgrades  int       `json:"downgrades"`
	Stable      int       `json:"stable"`
}

// SectorMigration is the net migration of one sector, joined from the
// portfolio.
type SectorMigration struct {
	Sector       string `json:"sector"`
	Total        int    `json:"total"`
	Upgrades     int    `json:"upgrades"`
	Downgrades   int    `json:"downgrades"`
	NetMigration int    `json:"net_migration"`
}

// MigrationReport is the full rating-migration view built from a snapshot
// history. Loans with fewer than two snapshots or with ratings outside the
// scale are excluded and counted, never silently ranked.
type MigrationReport struct {
	Migrations []MigrationRecord `json:"migrations"`

	Upgrades     int `json:"upgrades"`
	Downgrades   int `json:"downgrades"`
	Stable       int `json:"stable"`
	NetMigration int `json:"net_migration"`

	UpgradePct   decimal.Decimal `json:"upgrade_pct"`
	DowngradePct decimal.Decimal `json:"downgrade_pct"`
	StablePct    decimal.Decimal `json:"stable_pct"`

	Matrix   *TransitionMatrix `json:"matrix"`
	Timeline []TimelinePoint   `json:"timeline"`

	FallenAngels        []MigrationRecord `json:"fallen_angels,omitempty"`
	RisingStars         []MigrationRecord `json:"rising_stars,omitempty"`
	FallenAngelExposure decimal.Decimal   `json:"fallen_angel_exposure"`
	MajorDowngradeCount int               `json:"major_downgrade_count"`

	BySector []SectorMigration `json:"by_sector,omitempty"`

	InsufficientHistoryCount int      `json:"insufficient_history_count"`
	UnrankableCount          int      `json:"unrankable_count"`
	UnrankableLoanIDs        []string `json:"unrankable_loan_ids,omitempty"`
}

// MigrationAnalyzerConfig tunes the major-downgrade alert threshold.
type MigrationAnalyzerConfig struct {
	MajorDowngradeNotches int `json:"major_downgrade_notches" default:"3"`
}

// MigrationAnalyzer builds transition matrices and migration classifications
// from rating snapshot histories against the configured scale.
type MigrationAnalyzer struct {
	scale                 *ratings.Scale
	majorDowngradeNotches int
}

func NewMigrationAnalyzer(config MigrationAnalyzerConfig, scale *ratings.Scale) *MigrationAnalyzer {
	notches := config.MajorDowngradeNotches
	if notches <= 0 {
		notches = 3
	}
	if scale == nil {
		scale = ratings.Default()
	}
	return &MigrationAnalyzer{scale: scale, majorDowngradeNotches: notches}
}

// Analyze classifies each loan's migration from its two most recent
// snapshots and builds the transition matrix and timeline. portfolio is
// optional; when present it drives the sector breakdown and fallen-angel
// exposure, joined by loan ID.
func (ma *MigrationAnalyzer) Analyze(
	ctx context.Context,
	history []models.RatingSnapshot,
	portfolio *models.Portfolio,
) (*MigrationReport, error) {
	if len(history) == 0 {
		return nil, models.ErrEmptyDataset
	}

	byLoan := make(map[string][]models.RatingSnapshot)
	for _, snap := range history {
		byLoan[snap.LoanID] = append(byLoan[snap.LoanID], snap)
	}

	report := &MigrationReport{
		Matrix: ma.emptyMatrix(),
	}

	loanIDs := make([]string, 0, len(byLoan))
	for id := range byLoan {
		loanIDs = append(loanIDs, id)
	}
	sort.Strings(loanIDs)

	sectorAccum := make(map[string]*SectorMigration)

	for _, loanID := range loanIDs {
		snaps := byLoan[loanID]
		if len(snaps) < 2 {
			report.InsufficientHistoryCount++
			continue
		}
		sort.Slice(snaps, func(i, j int) bool {
			return snaps[i].SnapshotDate.Before(snaps[j].SnapshotDate)
		})
		previous := snaps[len(snaps)-2]
		current := snaps[len(snaps)-1]

		prevRank, prevOK := ma.scale.Rank(previous.CreditRating)
		currRank, currOK := ma.scale.Rank(current.CreditRating)
		if !prevOK || !currOK {
			report.UnrankableCount++
			report.UnrankableLoanIDs = append(report.UnrankableLoanIDs, loanID)
			continue
		}

		record := MigrationRecord{
			LoanID:         loanID,
			PreviousRating: previous.CreditRating,
			CurrentRating:  current.CreditRating,
			PreviousDate:   previous.SnapshotDate,
			CurrentDate:    current.SnapshotDate,
			NotchChange:    currRank - prevRank,
		}
		switch {
		case currRank < prevRank:
			record.Direction = MigrationUpgrade
			report.Upgrades++
		case currRank > prevRank:
			record.Direction = MigrationDowngrade
			report.Downgrades++
		default:
			record.Direction = MigrationStable
			report.Stable++
		}

		prevIG := ma.scale.IsInvestmentGrade(previous.CreditRating)
		currIG := ma.scale.IsInvestmentGrade(current.CreditRating)
		record.FallenAngel = prevIG && !currIG
		record.RisingStar = !prevIG && currIG

		if record.NotchChange >= ma.majorDowngradeNotches {
			report.MajorDowngradeCount++
		}

		report.Matrix.Counts[prevRank][currRank]++
		report.Migrations = append(report.Migrations, record)

		if record.FallenAngel {
			report.FallenAngels = append(report.FallenAngels, record)
		}
		if record.RisingStar {
			report.RisingStars = append(report.RisingStars, record)
		}

		if portfolio != nil {
			if loan := portfolio.FindLoan(loanID); loan != nil {
				if record.FallenAngel {
					report.FallenAngelExposure = report.FallenAngelExposure.Add(loan.Amount)
				}
				entry, ok := sectorAccum[loan.Sector]
				if !ok {
					entry = &SectorMigration{Sector: loan.Sector}
					sectorAccum[loan.Sector] = entry
				}
				entry.Total++
				switch record.Direction {
				case MigrationUpgrade:
					entry.Upgrades++
				case MigrationDowngrade:
					entry.Downgrades++
				}
			}
		}
	}

	report.NetMigration = report.Upgrades - report.Downgrades
	classified := report.Upgrades + report.Downgrades + report.Stable
	if classified > 0 {
		total := decimal.NewFromInt(int64(classified))
		hundred := decimal.NewFromInt(100)
		report.UpgradePct = decimal.NewFromInt(int64(report.Upgrades)).Div(total).Mul(hundred)
		report.DowngradePct = decimal.NewFromInt(int64(report.Downgrades)).Div(total).Mul(hundred)
		report.StablePct = decimal.NewFromInt(int64(report.Stable)).Div(total).Mul(hundred)
	}

	for _, entry := range sectorAccum {
		entry.NetMigration = entry.Upgrades - entry.Downgrades
		report.BySector = append(report.BySector, *entry)
	}
	sort.Slice(report.BySector, func(i, j int) bool {
		if report.BySector[i].NetMigration != report.BySector[j].NetMigration {
			return report.BySector[i].NetMigration > report.BySector[j].NetMigration
		}
		return report.BySector[i].Sector < report.BySector[j].Sector
	})

	report.Timeline = ma.buildTimeline(history)

	return report, nil
}

func (ma *MigrationAnalyzer) emptyMatrix() *TransitionMatrix {
	order := ma.scale.Ratings()
	counts := make([][]int, len(order))
	for i := range counts {
		counts[i] = make([]int, len(order))
	}
	return &TransitionMatrix{Ratings: order, Counts: counts}
}

// buildTimeline walks every consecutive pair of distinct snapshot dates and
// classifies the loans present in both. Unrankable ratings are skipped here
// the same way they are in the headline classification.
func (ma *MigrationAnalyzer) buildTimeline(history []models.RatingSnapshot) []TimelinePoint {
	byDate := make(map[time.Time]map[string]string)
	for _, snap := range history {
		date := snap.SnapshotDate
		if byDate[date] == nil {
			byDate[date] = make(map[string]string)
		}
		byDate[date][snap.LoanID] = snap.CreditRating
	}

	dates := make([]time.Time, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	timeline := make([]TimelinePoint, 0, len(dates))
	for i := 1; i < len(dates); i++ {
		prevSnap := byDate[dates[i-1]]
		currSnap := byDate[dates[i]]
		point := TimelinePoint{PeriodStart: dates[i-1], PeriodEnd: dates[i]}

		for loanID, prevRating := range prevSnap {
			currRating, present := currSnap[loanID]
			if !present {
				continue
			}
			prevRank, prevOK := ma.scale.Rank(prevRating)
			currRank, currOK := ma.scale.Rank(currRating)
			if !prevOK || !currOK {
				continue
			}
			switch {
			case currRank < prevRank:
				point.Upgrades++
			case currRank > prevRank:
				point.Downgrades++
			default:
				point.Stable++
			}
		}
		timeline = append(timeline, point)
	}
	return timeline
}
