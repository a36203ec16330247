package monitoring

import (
	"strconv"

	"golang.org/x/exp/constraints"

	"github.com/go-logr/logr"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/c0llal0/autosmp/internal/hotplug"
)

const (
	promNamespace string = "autosmp"

	LogTopName string = "monitoring"
)

type collectorImpl struct {
	collectFunc  func(ch chan<- prom.Metric)
	describeFunc func(ch chan<- *prom.Desc)
}

func (c collectorImpl) Collect(ch chan<- prom.Metric) {
	c.collectFunc(ch)
}

func (c collectorImpl) Describe(ch chan<- *prom.Desc) {
	c.describeFunc(ch)
}

type number interface {
	constraints.Integer | constraints.Float
}

// newPerCPUCollector is a generic factory of prometheus Collectors for
// metrics that are CPU bound. readFunc is queried at scrape time for every
// present CPU; read failures are skipped so offline cores simply do not
// report.
func newPerCPUCollector[T number](metricName, metricDesc string, metricType prom.ValueType,
	topo hotplug.Topology, readFunc func(cpuID uint) (T, error), log logr.Logger,
) prom.Collector {
	desc := prom.NewDesc(
		prom.BuildFQName(promNamespace, "", metricName),
		metricDesc,
		[]string{"cpu"},
		nil,
	)

	return collectorImpl{
		describeFunc: func(ch chan<- *prom.Desc) {
			ch <- desc
		},
		collectFunc: func(ch chan<- prom.Metric) {
			present, err := topo.PresentIDs()
			if err != nil {
				log.V(5).Info("skipping per-CPU collection", "error", err.Error())
				return
			}
			for _, cpuID := range present {
				val, err := readFunc(cpuID)
				if err != nil {
					log.V(5).Info("skipping CPU metric", "cpu", cpuID, "error", err.Error())
					continue
				}
				ch <- prom.MustNewConstMetric(
					desc,
					metricType,
					float64(val),
					strconv.Itoa(int(cpuID)),
				)
			}
		},
	}
}

// NewGovernorCollectors builds every collector the governor exposes, ready
// for registration.
func NewGovernorCollectors(
	governor *hotplug.Governor,
	topo hotplug.Topology,
	rates hotplug.RateSource,
	log logr.Logger,
) []prom.Collector {
	stats := governor.Stats()

	boolVal := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	collectors := []prom.Collector{
		newPerCPUCollector("cpu_current_rate_khz",
			"Current operating rate of each online CPU in kHz.",
			prom.GaugeValue, topo, rates.CurrentRate, log),

		prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: promNamespace,
			Name:      "online_cores",
			Help:      "Number of currently online CPU cores.",
		}, func() float64 {
			online, err := topo.OnlineIDs()
			if err != nil {
				return 0
			}
			return float64(len(online))
		}),

		prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: promNamespace,
			Name:      "enabled",
			Help:      "Whether the governor enable switch is on.",
		}, func() float64 { return boolVal(governor.Status().Enabled) }),

		prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: promNamespace,
			Name:      "suspended",
			Help:      "Whether the governor is in the suspended power state.",
		}, func() float64 { return boolVal(governor.Status().Suspended) }),

		prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: promNamespace,
			Name:      "up_streak",
			Help:      "Consecutive ticks the saturation condition has held.",
		}, func() float64 { return float64(governor.Status().UpStreak) }),

		prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: promNamespace,
			Name:      "down_streak",
			Help:      "Consecutive ticks the idle condition has held.",
		}, func() float64 { return float64(governor.Status().DownStreak) }),

		prom.NewCounterFunc(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "scale_ups_total",
			Help:      "Cores brought online by the governor.",
		}, func() float64 { return float64(stats.ScaleUps.Load()) }),

		prom.NewCounterFunc(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "scale_downs_total",
			Help:      "Cores taken offline by the governor.",
		}, func() float64 { return float64(stats.ScaleDowns.Load()) }),

		prom.NewCounterFunc(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "sample_faults_total",
			Help:      "Ticks aborted because a rate read failed.",
		}, func() float64 { return float64(stats.SampleFaults.Load()) }),

		prom.NewCounterFunc(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "hotplug_faults_total",
			Help:      "Hotplug primitive calls that failed.",
		}, func() float64 { return float64(stats.HotplugFaults.Load()) }),
	}

	return collectors
}
