package channel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"5511999990000":                "+5511999990000",
		"5511999990000@s.whatsapp.net": "+5511999990000",
		"+55 (11) 99999-0000":          "+5511999990000",
		"+5511999990000":               "+5511999990000",
		"":                             "",
		"abc":                          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestPhoneDigits(t *testing.T) {
	assert.Equal(t, "5511999990000", PhoneDigits("+5511999990000"))
	assert.Equal(t, "5511999990000", PhoneDigits("5511999990000@s.whatsapp.net"))
	assert.Equal(t, "", PhoneDigits(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "curto", Truncate("curto", 10))

	long := strings.Repeat("ç", 20)
	got := Truncate(long, 10)
	assert.Equal(t, strings.Repeat("ç", 7)+"...", got)
	assert.Len(t, []rune(got), 10)
}
