package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// DigestEntry lists the bills of one user coming due.
type DigestEntry struct {
	UserID   string
	Username string
	Bills    []*core.Bill
	Total    core.Money
}

// Digest is the due-soon report sent by the notifier.
type Digest struct {
	From    time.Time
	To      time.Time
	Entries []DigestEntry
}

// Empty reports whether no bill is coming due.
func (d Digest) Empty() bool { return len(d.Entries) == 0 }

// BuildDigest collects the bills due from the start of the day of now up to
// now+within, grouped by user. Users are ordered by username.
func BuildDigest(ctx context.Context, bills storage.RecordStore, users storage.UserStore, now time.Time, within time.Duration) (Digest, error) {
	from := startOfDay(now)
	to := now.UTC().Add(within)

	due, err := bills.ListBillsDueBefore(ctx, to)
	if err != nil {
		return Digest{}, fmt.Errorf("list bills due before %s: %w", to.Format(time.RFC3339), err)
	}

	byUser := map[string]*DigestEntry{}
	for _, b := range due {
		if b.DueDate.Before(from) {
			continue
		}
		e, ok := byUser[b.UserID]
		if !ok {
			e = &DigestEntry{UserID: b.UserID, Username: b.UserID}
			byUser[b.UserID] = e
		}
		e.Bills = append(e.Bills, b)
		e.Total = e.Total.Add(b.Amount)
	}

	d := Digest{From: from, To: to}
	for id, e := range byUser {
		u, err := users.GetUser(ctx, id)
		switch {
		case err == nil:
			e.Username = u.Username
		case !errors.Is(err, core.ErrNotFound):
			return Digest{}, fmt.Errorf("get user %s: %w", id, err)
		}
		d.Entries = append(d.Entries, *e)
	}
	sort.Slice(d.Entries, func(i, j int) bool { return d.Entries[i].Username < d.Entries[j].Username })
	return d, nil
}

// Text renders the digest as a plain-text message.
func (d Digest) Text() string {
	if d.Empty() {
		return fmt.Sprintf("No bills due until %s.", d.To.Format("2006-01-02"))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Bills due until %s\n", d.To.Format("2006-01-02"))
	for _, e := range d.Entries {
		fmt.Fprintf(&sb, "\n%s (total %s)\n", e.Username, e.Total)
		for _, b := range e.Bills {
			mark := ""
			if b.IsRecurring {
				mark = " (monthly)"
			}
			fmt.Fprintf(&sb, "- %s %s: %s%s\n", b.DueDate.Format("2006-01-02"), b.Name, b.Amount, mark)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
