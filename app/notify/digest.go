package notify

import (
	"fmt"
	"strings"

	"github.com/flathound/flathound/app/database"
)

// composeMessage renders the digest email for one recipient covering
// every pending notification grouped under their address.
func composeMessage(email string, group []database.PendingNotification, publicURL string) Message {
	subject := fmt.Sprintf("%d new listings match your alerts", len(group))
	if len(group) == 1 {
		subject = "1 new listing matches your alerts"
	}

	var body strings.Builder
	body.WriteString("New listings matching your search alerts:\n\n")

	for _, item := range group {
		body.WriteString("- ")
		body.WriteString(item.ListingTitle)
		if details := listingDetails(item); details != "" {
			body.WriteString(" (")
			body.WriteString(details)
			body.WriteString(")")
		}
		body.WriteString("\n  ")
		body.WriteString(item.ListingURL)
		body.WriteString("\n\n")
	}

	if publicURL != "" && len(group) > 0 {
		fmt.Fprintf(&body, "Unsubscribe: %s/unsubscribe?token=%s\n",
			strings.TrimRight(publicURL, "/"), group[0].UnsubscribeToken)
	}

	return Message{
		To:       email,
		Subject:  subject,
		TextBody: body.String(),
	}
}

func listingDetails(item database.PendingNotification) string {
	var parts []string
	if item.ListingPrice != nil {
		parts = append(parts, fmt.Sprintf("$%d", *item.ListingPrice))
	}
	if item.ListingBedrooms != nil {
		if *item.ListingBedrooms == 0 {
			parts = append(parts, "studio")
		} else {
			parts = append(parts, fmt.Sprintf("%dbr", *item.ListingBedrooms))
		}
	}
	if item.Neighborhood != "" {
		parts = append(parts, item.Neighborhood)
	}
	return strings.Join(parts, ", ")
}
