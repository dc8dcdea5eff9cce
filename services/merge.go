package services

import (
	"github.com/ceramicnetwork/go-fanout/models"
)

// Merge reconciles two independently edited copies of a collection. Equal timestamps resolve to the local item.
func Merge(local, remote models.Collection) (models.Collection, int) {
	return MergeWithTieBreak(local, remote, models.TieBreak_Local)
}

// MergeWithTieBreak returns the union of both collections. For keys present on both sides with differing items, the
// whole item with the later UpdatedAt wins and the conflict is counted. Neither input is modified.
func MergeWithTieBreak(local, remote models.Collection, tieBreak models.TieBreak) (models.Collection, int) {
	merged := make(models.Collection, len(local)+len(remote))
	conflicts := 0
	for key, localItem := range local {
		remoteItem, found := remote[key]
		if !found || localItem.Equal(remoteItem) {
			merged[key] = localItem
			continue
		}
		conflicts++
		switch {
		case localItem.UpdatedAt.After(remoteItem.UpdatedAt):
			merged[key] = localItem
		case remoteItem.UpdatedAt.After(localItem.UpdatedAt):
			merged[key] = remoteItem
		case tieBreak == models.TieBreak_Remote:
			merged[key] = remoteItem
		default:
			merged[key] = localItem
		}
	}
	for key, remoteItem := range remote {
		if _, found := local[key]; !found {
			merged[key] = remoteItem
		}
	}
	return merged, conflicts
}
