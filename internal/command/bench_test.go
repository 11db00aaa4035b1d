package command_test

import (
	"testing"

	"github.com/dantte-lp/counterd/internal/command"
)

func BenchmarkCounterMessageEncode(b *testing.B) {
	buf := make([]byte, 256)
	key := []byte{1, 2, 3, 4, 5}
	var msg command.CounterMessage

	b.ReportAllocs()
	for b.Loop() {
		msg.Wrap(buf, 0)
		msg.SetCorrelationID(1)
		msg.SetTypeID(42)
		msg.SetKey(key, 0, len(key))
		msg.SetLabelString("orders-queue")
	}
}

func BenchmarkCounterMessageValidate(b *testing.B) {
	buf := make([]byte, 256)
	cmd := command.CounterCommand{CorrelationID: 1, TypeID: 42, Key: []byte{1, 2, 3}, Label: "orders-queue"}
	n, err := command.EncodeCounterCommand(&cmd, buf, 0)
	if err != nil {
		b.Fatalf("EncodeCounterCommand: %v", err)
	}
	var msg command.CounterMessage

	b.ReportAllocs()
	for b.Loop() {
		msg.Wrap(buf, 0)
		if err := msg.ValidateLength(command.AddCounter, n); err != nil {
			b.Fatal(err)
		}
		_ = msg.Label()
	}
}

func BenchmarkForEachRecord(b *testing.B) {
	var w command.BatchWriter
	w.Reset(make([]byte, 1024))
	for range 16 {
		if _, err := w.Reserve(command.OnOperationSuccess, command.OperationSucceededLength); err != nil {
			b.Fatal(err)
		}
	}
	batch := w.Bytes()
	handler := func(int32, []byte, int, int) error { return nil }

	b.ReportAllocs()
	for b.Loop() {
		if _, err := command.ForEachRecord(batch, handler); err != nil {
			b.Fatal(err)
		}
	}
}
