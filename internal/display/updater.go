package display

import (
	"fmt"
	"log/slog"
	"time"

	"airwatch/internal/sensor"
)

// ClockLayout renders like a browser's en-US toLocaleString.
const ClockLayout = "1/2/2006, 3:04:05 PM"

type Updater struct {
	logger *slog.Logger
}

func NewUpdater(logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{logger: logger}
}

// Dispatch applies ev to doc. Only the targets of ev's kind are touched, and
// they are all resolved before the first write so a missing target leaves the
// document unchanged. Unrecognized kinds are ignored.
func (u *Updater) Dispatch(doc Document, ev sensor.Event) error {
	switch {
	case ev.Kind == sensor.KindDHT22 && ev.DHT22 != nil:
		els, err := resolve(doc, TargetTemperature, TargetHumidity)
		if err != nil {
			return err
		}
		els[0].SetText("Temperature: " + fixed2(ev.DHT22.TempC) + "°C")
		els[1].SetText("Humidity: " + fixed2(ev.DHT22.Humidity) + "%")

	case ev.Kind == sensor.KindMQ135 && ev.MQ135 != nil:
		els, err := resolve(doc, TargetMQ135Value, TargetMQ135Quality)
		if err != nil {
			return err
		}
		els[0].SetText(fixed2(ev.MQ135.Value))
		ClassifyQuality(els[1], ev.MQ135.Quality)

	case ev.Kind == sensor.KindPM && ev.PM != nil:
		els, err := resolve(doc, TargetPMValue, TargetPMQuality)
		if err != nil {
			return err
		}
		els[0].SetText(FormatPM(*ev.PM))
		ClassifyQuality(els[1], ev.PM.Quality)

	default:
		u.logger.Debug("ignoring sensor event", "sensor_type", string(ev.Kind))
	}
	return nil
}

// FormatPM renders the four particulate fields in fixed order.
func FormatPM(pm sensor.PM) string {
	return fmt.Sprintf("PM_1p0 : %s, PM_2p5 : %s, PM_4p0 : %s, PM_10p0 : %s",
		fixed2(pm.PM1p0), fixed2(pm.PM2p5), fixed2(pm.PM4p0), fixed2(pm.PM10p0))
}

// StampClock writes now into the currentTime target.
func StampClock(doc Document, now time.Time) error {
	el, err := doc.ElementByID(TargetCurrentTime)
	if err != nil {
		return err
	}
	el.SetText("Date: " + now.Format(ClockLayout))
	return nil
}

func resolve(doc Document, ids ...string) ([]Element, error) {
	out := make([]Element, 0, len(ids))
	for _, id := range ids {
		el, err := doc.ElementByID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}
