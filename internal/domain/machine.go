package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type MachineStatus string

const (
	MachineOnline      MachineStatus = "Online"
	MachineOffline     MachineStatus = "Offline"
	MachineMaintenance MachineStatus = "Maintenance"
)

func (s MachineStatus) Valid() bool {
	switch s {
	case MachineOnline, MachineOffline, MachineMaintenance:
		return true
	}
	return false
}

type Machine struct {
	ID             int           `json:"id"`
	Name           string        `json:"name"`
	Location       string        `json:"location"`
	Status         MachineStatus `json:"status"`
	ThingName      null.String   `json:"thing_name"` // IoT thing of the ESP32 controller, if any
	LastActivity   null.Time     `json:"last_activity"`
	BinCapacity    int           `json:"bin_capacity"`
	BinFillPercent null.Int      `json:"bin_fill_percent"`
	TotalCollected int           `json:"total_collected"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      null.Time     `json:"updated_at"`
}

type MachineDTO struct {
	Name        string `json:"name" binding:"required"`
	Location    string `json:"location" binding:"required"`
	ThingName   string `json:"thing_name"`
	BinCapacity int    `json:"bin_capacity"`
}

type MachineStatusDTO struct {
	Status MachineStatus `json:"status" binding:"required,oneof=Online Offline Maintenance"`
}
