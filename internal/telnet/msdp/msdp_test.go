package msdp

import (
	"testing"

	"github.com/stesla/telwire/internal/event"
	"github.com/stesla/telwire/internal/telnet"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	var tests = []struct {
		name     string
		vars     []Variable
		expected []byte
	}{
		{
			"string",
			[]Variable{{Name: "HP", Value: String("100")}},
			[]byte{VAR, 'H', 'P', VAL, '1', '0', '0'},
		},
		{
			"array",
			[]Variable{{Name: "L", Value: Array{"a", "b"}}},
			[]byte{VAR, 'L', VAL, ARRAY_OPEN, VAL, 'a', VAL, 'b', ARRAY_CLOSE},
		},
		{
			"table",
			[]Variable{{Name: "R", Value: Table{{Name: "V", Value: String("1")}}}},
			[]byte{VAR, 'R', VAL, TABLE_OPEN, VAR, 'V', VAL, '1', TABLE_CLOSE},
		},
		{
			"several",
			[]Variable{{Name: "A", Value: String("1")}, {Name: "B", Value: String("")}},
			[]byte{VAR, 'A', VAL, '1', VAR, 'B', VAL},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			encoded := Encode(test.vars...)
			require.Equal(t, test.expected, encoded)
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			require.Equal(t, test.vars, decoded)
		})
	}
}

func TestDecodeNested(t *testing.T) {
	data := Encode(Variable{Name: "ROOM", Value: Table{
		{Name: "VNUM", Value: String("6008")},
		{Name: "EXITS", Value: Table{
			{Name: "n", Value: String("6011")},
		}},
		{Name: "TAGS", Value: Array{"safe", "indoors"}},
	}})
	vars, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	require.Equal(t, `ROOM={VNUM="6008" EXITS={n="6011"} TAGS=["safe" "indoors"]}`, Format(vars))
}

func TestDecodeRepeatedValues(t *testing.T) {
	vars, err := Decode([]byte{VAR, 'R', 'E', 'P', 'O', 'R', 'T', VAL, 'H', 'P', VAL, 'M', 'P'})
	require.NoError(t, err)
	require.Equal(t, []Variable{{Name: "REPORT", Value: Array{"HP", "MP"}}}, vars)
}

func TestDecodeMalformed(t *testing.T) {
	var tests = [][]byte{
		{VAL, 'x'},
		{VAR, 'x'},
		{VAR, 'x', VAL, TABLE_OPEN, VAR, 'y', VAL, 'z'},
		{VAR, 'x', VAL, ARRAY_OPEN, VAL, 'y'},
		{VAR, 'x', VAL, 'y', TABLE_CLOSE},
	}
	for _, data := range tests {
		_, err := Decode(data)
		require.Error(t, err, "%v", data)
	}
}

func TestHandler(t *testing.T) {
	s := telnet.NewSession(telnet.Config{})
	s.Register(telnet.MSDP, Handler{}).AllowUs(true)
	_, _, err := s.Receive([]byte{telnet.IAC, telnet.DO, telnet.MSDP})
	require.NoError(t, err)

	report := Message(Variable{Name: "REPORT", Value: String("HEALTH")})
	events, _, err := s.Receive(telnet.Encode(report))
	require.NoError(t, err)
	require.Equal(t, []event.Event{{Name: EventVariables, Data: []Variable{{Name: "REPORT", Value: String("HEALTH")}}}}, events)

	out, err := s.Send(Message(Variable{Name: "HEALTH", Value: String("100")}))
	require.NoError(t, err)
	require.Equal(t, telnet.Encode(telnet.Subnegotiation{
		Opt:  telnet.MSDP,
		Data: []byte{VAR, 'H', 'E', 'A', 'L', 'T', 'H', VAL, '1', '0', '0'},
	}), out)

	events, _, err = s.Receive(telnet.Encode(telnet.Subnegotiation{Opt: telnet.MSDP, Data: []byte{VAL}}))
	require.NoError(t, err)
	require.Equal(t, telnet.EventDiagnostic, events[0].Name)
}
