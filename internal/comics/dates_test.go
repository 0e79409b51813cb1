package comics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRangeInclusive(t *testing.T) {
	t.Parallel()

	start := time.Date(2000, time.February, 27, 0, 0, 0, 0, time.UTC)
	end := time.Date(2000, time.March, 2, 0, 0, 0, 0, time.UTC)

	days := DateRange(start, end)
	require.Len(t, days, 5)
	assert.Equal(t, "2000-02-27", FormatDate(days[0]))
	assert.Equal(t, "2000-02-29", FormatDate(days[2]))
	assert.Equal(t, "2000-03-02", FormatDate(days[4]))
}

func TestDateRangeInverted(t *testing.T) {
	t.Parallel()

	assert.Nil(t, DateRange(LastStrip, FirstStrip))
}

func TestDateRangeFullArchive(t *testing.T) {
	t.Parallel()

	days := DateRange(FirstStrip, LastStrip)
	assert.Equal(t, FirstStrip, days[0])
	assert.Equal(t, LastStrip, days[len(days)-1])
	assert.Len(t, days, int(LastStrip.Sub(FirstStrip).Hours()/24)+1)
}

func TestAssetPathAndSourceURL(t *testing.T) {
	t.Parallel()

	date, err := ParseDate("2001-02-13")
	require.NoError(t, err)

	assert.Equal(t, "2001/Dilbert_2001-02-13.png", AssetPath(date))
	assert.Equal(t, "https://dilbert.com/strip/2001-02-13", SourceURL(date))

	record := NewRecord(date, "text")
	assert.Equal(t, Record{Date: "2001-02-13", ImagePath: "2001/Dilbert_2001-02-13.png", Transcript: "text"}, record)
}

func TestParseDateRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseDate("13/02/2001")
	require.Error(t, err)
}

func TestInArchive(t *testing.T) {
	t.Parallel()

	assert.True(t, InArchive(FirstStrip))
	assert.True(t, InArchive(LastStrip.Add(5*time.Hour)))
	assert.False(t, InArchive(FirstStrip.AddDate(0, 0, -1)))
	assert.False(t, InArchive(LastStrip.AddDate(0, 0, 1)))
}

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "work", NormalizeTag(" #work "))
	assert.Equal(t, "#double", NormalizeTag("##double"))
	assert.Equal(t, "Boss", NormalizeTag("Boss"))
	assert.Empty(t, NormalizeTag(" # "))
}

func TestContainsPattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "%boss%", ContainsPattern("boss"))
	assert.Equal(t, `%100\%%`, ContainsPattern("100%"))
	assert.Equal(t, `%a\_b%`, ContainsPattern("a_b"))
	assert.Equal(t, `%C:\\dir%`, ContainsPattern(`C:\dir`))
}
