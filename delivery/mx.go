package delivery

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strings"

	"github.com/WesleyKishore-2054/Resilient-Email-Service/internal/email"
)

var mxLookup = net.DefaultResolver.LookupMX

// ResolveMX returns the domain's exchange hosts, lowest preference first.
// Hosts sharing a preference are shuffled to spread load.
func ResolveMX(ctx context.Context, domain string) ([]string, error) {
	records, err := mxLookup(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("MX lookup failed for %s: %w", domain, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("MX lookup failed for %s: no MX records", domain)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})
	for i := 0; i < len(records); {
		j := i + 1
		for j < len(records) && records[j].Pref == records[i].Pref {
			j++
		}
		group := records[i:j]
		rand.Shuffle(len(group), func(a, b int) { group[a], group[b] = group[b], group[a] })
		i = j
	}

	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		hosts = append(hosts, strings.TrimSuffix(mx.Host, "."))
	}
	return hosts, nil
}

// RecipientDomain extracts the domain part of an email address.
func RecipientDomain(address string) (string, error) {
	addr, err := email.ParseAddress(address)
	if err != nil {
		return "", fmt.Errorf("invalid email format: %w", err)
	}
	return email.Domain(addr)
}
