package device

import "time"

// WaterModel simulates the tub temperature in place of a thermistor
type WaterModel struct {
	Ambient  float64 // °F the water drifts toward
	HeatRate float64 // °F gained per minute while heating
	LossRate float64 // fraction of the gap to ambient lost per minute
}

// Next advances the water temperature by dt
func (m WaterModel) Next(temp float64, heating bool, dt time.Duration) float64 {
	if dt <= 0 {
		return temp
	}
	minutes := dt.Minutes()
	if heating {
		temp += m.HeatRate * minutes
	}
	loss := m.LossRate * minutes
	if loss > 1 {
		loss = 1
	}
	return temp - (temp-m.Ambient)*loss
}
