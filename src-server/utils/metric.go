package utils

// Metric carries one-shot measurements from the code that produced them to
// the prometheus gauges in the metric package. The channels are unbuffered,
// so metric.Init must be listening before anything sends.
type Metric struct {
	DatabaseRead                  chan float64
	DatabaseReadForAuthMiddleware chan float64
	DatabaseWrite                 chan float64
	DiscordSendMessage            chan float64
	SyncPassDuration              chan float64
	SyncEventsPulled              chan float64
	SyncEventsPushed              chan float64
	IcalRepairs                   chan float64
}

func NewMetric() *Metric {
	return &Metric{
		DatabaseRead:                  make(chan float64),
		DatabaseReadForAuthMiddleware: make(chan float64),
		DatabaseWrite:                 make(chan float64),
		DiscordSendMessage:            make(chan float64),
		SyncPassDuration:              make(chan float64),
		SyncEventsPulled:              make(chan float64),
		SyncEventsPushed:              make(chan float64),
		IcalRepairs:                   make(chan float64),
	}
}
