package traff

import (
	"testing"

	"github.com/traffxml/traff-go/traffic"
)

func TestTrafficImpact(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   Impact
		wantOK bool
	}{
		{
			name:   "no events",
			events: nil,
			wantOK: false,
		},
		{
			name: "single congestion event",
			events: []Event{
				{Class: Congestion, Type: CongestionHeavyTraffic},
			},
			want:   Impact{SpeedGroup: traffic.G4, MaxspeedKmH: MaxspeedNone},
			wantOK: true,
		},
		{
			name: "block wins over everything",
			events: []Event{
				{Class: Congestion, Type: CongestionNormalTraffic},
				{Class: Restriction, Type: RestrictionClosed},
				{Class: Delay, Type: DelaySeveralHours},
			},
			want:   Impact{SpeedGroup: traffic.TempBlock, MaxspeedKmH: MaxspeedNone},
			wantOK: true,
		},
		{
			name: "slowest group and longest delay win",
			events: []Event{
				{Class: Congestion, Type: CongestionSlowTraffic},
				{Class: Congestion, Type: CongestionStationaryTraffic},
				{Class: Delay, Type: DelayUncertainDuration},
				{Class: Delay, Type: DelaySeveralHours},
			},
			want:   Impact{SpeedGroup: traffic.G1, MaxspeedKmH: MaxspeedNone, DelayMins: 150},
			wantOK: true,
		},
		{
			name: "explicit speed kept alongside the group",
			events: []Event{
				{Class: Restriction, Type: RestrictionSpeedLimit, SpeedKmH: 60},
			},
			want:   Impact{SpeedGroup: traffic.G4, MaxspeedKmH: 60},
			wantOK: true,
		},
		{
			name: "lowest explicit speed wins",
			events: []Event{
				{Class: Restriction, Type: RestrictionSpeedLimit, SpeedKmH: 80},
				{Class: Congestion, Type: CongestionSlowTraffic, SpeedKmH: 40},
			},
			want:   Impact{SpeedGroup: traffic.G3, MaxspeedKmH: 40},
			wantOK: true,
		},
		{
			name: "explicit duration overrides the delay table",
			events: []Event{
				{Class: Delay, Type: DelayUncertainDuration, DurationMins: 90},
			},
			want:   Impact{SpeedGroup: traffic.Unknown, MaxspeedKmH: MaxspeedNone, DelayMins: 90},
			wantOK: true,
		},
		{
			name: "unmapped event types have no impact",
			events: []Event{
				{Class: Congestion, Type: CongestionCleared},
				{Class: Restriction, Type: RestrictionReopened},
			},
			wantOK: false,
		},
		{
			name: "carriageway closure has no road-level impact",
			events: []Event{
				{Class: Restriction, Type: RestrictionCarriagewayClosed},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Message{ID: "test", Events: tt.events}
			got, ok := msg.TrafficImpact()
			if ok != tt.wantOK {
				t.Fatalf("TrafficImpact() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("TrafficImpact() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestImpactEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Impact
		want bool
	}{
		{
			name: "blocks are equal regardless of other fields",
			a:    Impact{SpeedGroup: traffic.TempBlock, MaxspeedKmH: MaxspeedNone},
			b:    Impact{SpeedGroup: traffic.TempBlock, MaxspeedKmH: 30, DelayMins: 10},
			want: true,
		},
		{
			name: "same fields",
			a:    Impact{SpeedGroup: traffic.G2, MaxspeedKmH: 60, DelayMins: 5},
			b:    Impact{SpeedGroup: traffic.G2, MaxspeedKmH: 60, DelayMins: 5},
			want: true,
		},
		{
			name: "different delay",
			a:    Impact{SpeedGroup: traffic.G2, MaxspeedKmH: 60, DelayMins: 5},
			b:    Impact{SpeedGroup: traffic.G2, MaxspeedKmH: 60, DelayMins: 6},
			want: false,
		},
		{
			name: "block vs non-block",
			a:    Impact{SpeedGroup: traffic.TempBlock, MaxspeedKmH: MaxspeedNone},
			b:    Impact{SpeedGroup: traffic.G0, MaxspeedKmH: MaxspeedNone},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}
