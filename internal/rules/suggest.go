package rules

import "github.com/sadopc/lightbeam/internal/store"

// SuggestFromActivity drafts a rule from an activity the user just rated:
// URL activities get a domain rule so the judgment covers the whole site,
// anything else an app-name rule. The draft is not persisted.
func SuggestFromActivity(a store.Activity, rating int) store.Rule {
	r := store.Rule{
		UserID: a.UserID,
		Rating: rating,
		Active: true,
	}
	if a.URL != nil {
		if domain := ExtractDomain(*a.URL); domain != "" {
			r.Domain = domain
			return r
		}
	}
	r.AppName = a.OwnerName
	return r
}
