package delimited

import (
	"testing"
)

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected byte
		wantErr  bool
	}{
		{"comma", "ThermostatId,CycleType,StartTime,EndTime", ',', false},
		{"tab", "ThermostatId\tTimeStamp\tDegrees", '\t', false},
		{"pipe", "ThermostatId|CycleType|StartTime|EndTime", '|', false},
		{"space", "LocationId TimeStamp Degrees", ' ', false},
		{"pipe wins over spaces in labels", "Thermostat Id|Cycle Type", '|', false},
		{"comma wins over spaces in labels", "device id,zip code", ',', false},
		{"comma wins over earlier tab", "a\tb,c", ',', false},
		{"no delimiter", "ThermostatId", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectDelimiter([]byte(tt.line))
			if tt.wantErr {
				if err == nil {
					t.Errorf("DetectDelimiter(%q) expected error, got %q", tt.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectDelimiter(%q) error: %v", tt.line, err)
			}
			if got != tt.expected {
				t.Errorf("DetectDelimiter(%q) = %q, expected %q", tt.line, got, tt.expected)
			}
		})
	}
}

func TestDetectQuote(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected byte
	}{
		{"double quoted field", `1298509,"Cool",2012-01-01 00:03:40`, '"'},
		{"single quoted field", "1298509,'Cool',2012-01-01 00:03:40", '\''},
		{"double wins over earlier single", `it's,"quoted"`, '"'},
		{"quote before digit ignored", "5'10,6'2", 0},
		{"quoted number detected by closing quote", `123,"456"`, '"'},
		{"no quotes", "1298509,Cool,2012-01-01 00:03:40", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectQuote([]byte(tt.line))
			if got != tt.expected {
				t.Errorf("DetectQuote(%q) = %q, expected %q", tt.line, got, tt.expected)
			}
		})
	}
}

func TestContainsDigits(t *testing.T) {
	tests := []struct {
		line     string
		expected bool
	}{
		{"1298509,Cool", true},
		{"ThermostatId,CycleType,StartTime,EndTime", false},
		{"", false},
		{"T12", true},
	}

	for _, tt := range tests {
		if got := ContainsDigits([]byte(tt.line)); got != tt.expected {
			t.Errorf("ContainsDigits(%q) = %v, expected %v", tt.line, got, tt.expected)
		}
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		delim    byte
		expected []string
	}{
		{"plain comma", "ThermostatId,CycleType,StartTime,EndTime\n", ',',
			[]string{"ThermostatId", "CycleType", "StartTime", "EndTime"}},
		{"trailing delimiter", "a,b,c,\n", ',', []string{"a", "b", "c"}},
		{"crlf", "a|b|c\r\n", '|', []string{"a", "b", "c"}},
		{"quoted labels", `"Id","Degrees"` + "\n", ',', []string{"Id", "Degrees"}},
		{"surrounding whitespace", " Id , Degrees \n", ',', []string{"Id", "Degrees"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHeader([]byte(tt.line), tt.delim)
			assertFields(t, got, tt.expected)
		})
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		line     string
		expected []string
	}{
		{
			"pipe unquoted",
			Dialect{Delimiter: '|'},
			"1298509|Cool|2012-01-01 00:03:40|2012-01-01 00:15:20\n",
			[]string{"1298509", "Cool", "2012-01-01 00:03:40", "2012-01-01 00:15:20"},
		},
		{
			"comma quoted",
			Dialect{Delimiter: ',', Quote: '"'},
			`"1298509","Cool","2012-01-01 00:03:40"` + "\n",
			[]string{"1298509", "Cool", "2012-01-01 00:03:40"},
		},
		{
			"asymmetric quote kept",
			Dialect{Delimiter: ',', Quote: '"'},
			`"abc,def`,
			[]string{`"abc`, "def"},
		},
		{
			"whitespace trimmed outside quotes",
			Dialect{Delimiter: ',', Quote: '"'},
			` 1 , " a " `,
			[]string{"1", " a "},
		},
		{
			"empty fields preserved",
			Dialect{Delimiter: ','},
			"1,,3",
			[]string{"1", "", "3"},
		},
		{
			"crlf stripped",
			Dialect{Delimiter: ','},
			"1,2\r\n",
			[]string{"1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.dialect.ParseLine([]byte(tt.line))
			assertFields(t, got, tt.expected)
		})
	}
}

func TestValidRow(t *testing.T) {
	tests := []struct {
		name     string
		fields   []string
		columns  int
		expected bool
	}{
		{"valid", []string{"1", "Cool", "t1", "t2"}, 4, true},
		{"too few fields", []string{"1", "Cool"}, 4, false},
		{"too many fields", []string{"1", "2", "3", "4", "5"}, 4, false},
		{"empty field", []string{"1", "", "t1", "t2"}, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidRow(tt.fields, tt.columns); got != tt.expected {
				t.Errorf("ValidRow(%v, %d) = %v, expected %v",
					tt.fields, tt.columns, got, tt.expected)
			}
		})
	}
}

func TestRowContainsDigits(t *testing.T) {
	if !RowContainsDigits([]string{"abc", "T12"}) {
		t.Error(`RowContainsDigits(["abc" "T12"]) = false, expected true`)
	}
	if RowContainsDigits([]string{"abc", "def"}) {
		t.Error(`RowContainsDigits(["abc" "def"]) = true, expected false`)
	}
}

func assertFields(t *testing.T, got, expected []string) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("got %d fields %v, expected %d %v", len(got), got, len(expected), expected)
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Errorf("field %d = %q, expected %q", i, got[i], expected[i])
		}
	}
}
