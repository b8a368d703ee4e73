package control

import "testing"

func TestMetricsRegistryRecordPeersLive(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.RecordPeersLive(2, 17)
	snap := mr.GetSnapshot()
	if snap["ringsocket.peers_live.worker2"] != int64(17) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestMetricsRegistryIncrAccumulates(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.Incr(MetricRingResizes, 1)
	mr.Incr(MetricRingResizes, 2)
	snap := mr.GetSnapshot()
	if snap[MetricRingResizes] != int64(3) {
		t.Fatalf("got %v, want 3", snap[MetricRingResizes])
	}
}

func TestConfigStoreOnReloadFiresOnSet(t *testing.T) {
	cs := NewConfigStore()
	done := make(chan struct{})
	cs.OnReload(func() { close(done) })
	cs.SetConfig(map[string]any{"log_level": "debug"})
	<-done

	if v, ok := cs.Get("log_level"); !ok || v != "debug" {
		t.Fatalf("Get = %v, %v", v, ok)
	}
}
