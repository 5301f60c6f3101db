package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	matterbridge "github.com/nerrad567/gray-logic-matter/internal/bridges/matter"
	"github.com/nerrad567/gray-logic-matter/internal/device"
)

// handleListDevices returns all catalogued devices with their endpoint
// assignment.
//
// Query parameters:
//   - type: filter by device type (on_off_light, contact_sensor, etc.)
//   - bridged: filter by whether the device has a dynamic endpoint
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var bridgedFilter *bool
	if v := q.Get("bridged"); v != "" {
		b, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			writeBadRequest(w, "bridged must be true or false")
			return
		}
		bridgedFilter = &b
	}

	devices, err := s.catalog.ListDevices(r.Context(), device.Filter{Type: device.DeviceType(q.Get("type"))})
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	bridged := s.bridgedByID()
	out := make([]matterbridge.DeviceStatus, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		status, ok := bridged[d.ID]
		if bridgedFilter != nil && ok != *bridgedFilter {
			continue
		}
		if !ok {
			status = matterbridge.DeviceStatus{Device: d}
		}
		out = append(out, status)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns a single device by ID with its endpoint assignment.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.catalog.GetDevice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get device")
		return
	}

	if status, ok := s.bridgedByID()[id]; ok {
		writeJSON(w, http.StatusOK, status)
		return
	}
	writeJSON(w, http.StatusOK, matterbridge.DeviceStatus{Device: dev})
}

// handleCreateDevice catalogues a new device and bridges it if auto_bridge
// is set. A bridging failure still returns 201 with bridge_error populated.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	status, err := s.bridge.AddDevice(r.Context(), &dev)
	if err != nil {
		if !isValidationError(err) {
			s.logger.Error("failed to create device", "error", err)
		}
		writeDomainError(w, err, "failed to create device")
		return
	}

	writeJSON(w, http.StatusCreated, status)
}

// handleUpdateDevice partially updates a device. Bridged devices must be
// unbridged first because their endpoint descriptor is fixed at
// registration; the bridge makes that check and the write atomically.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.catalog.GetDevice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get device")
		return
	}

	// Decode partial update onto existing device
	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed

	if err := s.bridge.UpdateDevice(r.Context(), existing); err != nil {
		if !isValidationError(err) && !errors.Is(err, matterbridge.ErrAlreadyBridged) {
			s.logger.Error("failed to update device", "device_id", id, "error", err)
		}
		writeDomainError(w, err, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, matterbridge.DeviceStatus{Device: existing})
}

// handleDeleteDevice unbridges a device if needed and removes it.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.bridge.RemoveDevice(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleBridgeDevice gives a catalogued device a dynamic endpoint.
func (s *Server) handleBridgeDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := s.bridge.BridgeDevice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to bridge device")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleUnbridgeDevice removes a device's dynamic endpoint.
func (s *Server) handleUnbridgeDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.bridge.UnbridgeDevice(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to unbridge device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStats returns device catalogue statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.catalog.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_devices": stats.TotalDevices,
		"auto_bridged":  stats.AutoBridged,
		"by_type":       stats.ByType,
		"bridged":       len(s.bridge.BridgedDevices()),
	})
}

func (s *Server) bridgedByID() map[string]matterbridge.DeviceStatus {
	list := s.bridge.BridgedDevices()
	out := make(map[string]matterbridge.DeviceStatus, len(list))
	for _, status := range list {
		out[status.Device.ID] = status
	}
	return out
}
