package modem_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/espgw/modem"
)

type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Flush expects the read that discards stale input before every command.
func (b *MockSequenceBuilder) Flush() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).Return(0, nil),
	)
	return b
}

// Command expects cmd to be written and answers it with resp in a single
// read. An empty resp expects no read at all.
func (b *MockSequenceBuilder) Command(cmd, resp string) *MockSequenceBuilder {
	b.Flush()
	wire := []byte(cmd + "\r\n")
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(wire).Return(len(wire), nil),
	)
	if resp != "" {
		b.calls = append(b.calls,
			b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				return copy(p, resp), nil
			}),
		)
	}
	return b
}

func (b *MockSequenceBuilder) Restore() *MockSequenceBuilder {
	return b.Command("AT+RESTORE", "\r\nOK\r\n\r\n ets Jan  8 2013,rst cause:2, boot mode:(3,7)\r\n\r\nready\r\n")
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.Command("ATE0", "ATE0\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
