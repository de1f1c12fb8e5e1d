package kv

import "fmt"

// Budget limits mirror chrome.storage.sync.
const (
	DefaultQuotaBytesPerItem = 8192
	DefaultQuotaBytes        = 102400
	DefaultMaxItems          = 512
)

// Quota bounds what a transport accepts. Zero fields disable the check.
type Quota struct {
	BytesPerItem int
	TotalBytes   int
	MaxItems     int
}

// DefaultQuota returns the synced-storage budget.
func DefaultQuota() Quota {
	return Quota{
		BytesPerItem: DefaultQuotaBytesPerItem,
		TotalBytes:   DefaultQuotaBytes,
		MaxItems:     DefaultMaxItems,
	}
}

// ItemSize is the number of bytes an item counts against the budget.
func ItemSize(key string, value []byte) int {
	return len(key) + len(value)
}

// Check validates that applying pending on top of current stays within the
// quota. current is not modified.
func (q Quota) Check(current, pending Items) error {
	for k, v := range pending {
		if q.BytesPerItem > 0 && ItemSize(k, v) > q.BytesPerItem {
			return fmt.Errorf("%w: item %q is %d bytes (limit %d)",
				ErrQuotaExceeded, k, ItemSize(k, v), q.BytesPerItem)
		}
	}
	if q.TotalBytes <= 0 && q.MaxItems <= 0 {
		return nil
	}

	total, count := 0, 0
	for k, v := range current {
		if nv, ok := pending[k]; ok {
			v = nv
		}
		total += ItemSize(k, v)
		count++
	}
	for k, v := range pending {
		if _, ok := current[k]; ok {
			continue
		}
		total += ItemSize(k, v)
		count++
	}

	if q.TotalBytes > 0 && total > q.TotalBytes {
		return fmt.Errorf("%w: total %d bytes (limit %d)", ErrQuotaExceeded, total, q.TotalBytes)
	}
	if q.MaxItems > 0 && count > q.MaxItems {
		return fmt.Errorf("%w: %d items (limit %d)", ErrQuotaExceeded, count, q.MaxItems)
	}
	return nil
}
