package notification

import (
	"testing"
	"time"

	"github.com/stanstork/waterwatch-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTest(q models.Quality) models.WaterTest {
	return models.WaterTest{
		WaterbodyName: "Ganga Ghat",
		Location:      "Varanasi",
		Quality:       q,
		DateTime:      time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC),
	}
}

func TestFormatter_MediumMessage(t *testing.T) {
	f, err := NewFormatter("Asia/Kolkata")
	require.NoError(t, err)

	msg := f.MediumMessage(sampleTest(models.QualityMedium))

	assert.Equal(t, "Water Quality Alert: MEDIUM risk\n"+
		"Waterbody: Ganga Ghat\n"+
		"Location: Varanasi\n"+
		"Tested: 05 Mar 2024, 02:30 PM\n"+
		"Please review the site and schedule a follow-up test.", msg)
}

func TestFormatter_UrgentMessage(t *testing.T) {
	f, err := NewFormatter("")
	require.NoError(t, err)

	high := f.UrgentMessage(sampleTest(models.QualityHigh))
	assert.Contains(t, high, "URGENT: HIGH risk water quality\n")
	assert.Contains(t, high, "Tested: 05 Mar 2024, 09:00 AM")

	disease := f.UrgentMessage(sampleTest(models.QualityDisease))
	assert.Contains(t, disease, "URGENT: Disease detected in water\n")
}

func TestNewFormatter_BadZone(t *testing.T) {
	_, err := NewFormatter("Mars/Olympus")
	assert.Error(t, err)
}
