package models

import (
	"errors"
	"testing"
)

func TestScheduleValidate(t *testing.T) {
	cases := []struct {
		name     string
		schedule DownloadSchedule
		wantErr  error
	}{
		{
			name:     "no gates",
			schedule: DownloadSchedule{BroadcasterID: "123", Quality: QualityHigh},
		},
		{
			name:     "tags flag without tags",
			schedule: DownloadSchedule{HasTags: true},
			wantErr:  ErrScheduleTagsRequired,
		},
		{
			name:     "tags flag with tags",
			schedule: DownloadSchedule{HasTags: true, Tags: []string{"speedrun"}},
		},
		{
			name:     "category flag without categories",
			schedule: DownloadSchedule{HasCategory: true},
			wantErr:  ErrScheduleCategoriesRequired,
		},
		{
			name:     "category flag with categories",
			schedule: DownloadSchedule{HasCategory: true, Categories: []string{"Just Chatting"}},
		},
		{
			name:     "min view flag with zero count",
			schedule: DownloadSchedule{HasMinView: true},
			wantErr:  ErrScheduleMinViewRequired,
		},
		{
			name:     "min view flag with negative count",
			schedule: DownloadSchedule{HasMinView: true, ViewersCount: -5},
			wantErr:  ErrScheduleMinViewRequired,
		},
		{
			name:     "min view flag with positive count",
			schedule: DownloadSchedule{HasMinView: true, ViewersCount: 100},
		},
		{
			name: "unused fields allowed empty",
			// has* flags off: the value fields may stay zero
			schedule: DownloadSchedule{Tags: nil, ViewersCount: 0, Categories: nil},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.schedule.Validate()
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, c.wantErr)
			}
		})
	}
}
