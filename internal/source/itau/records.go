package itau

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-forwarder/internal/domain"
)

type movement struct {
	Tipo                 string           `json:"tipo"`
	Descripcion          string           `json:"descripcion"`
	DescripcionAdicional string           `json:"descripcionAdicional"`
	CodigoFormulario     looseInt         `json:"codigoFormulario"`
	Fecha                epochDate        `json:"fecha"`
	Importe              *decimal.Decimal `json:"importe"`
	Saldo                decimal.Decimal  `json:"saldo"`
}

type currentMonth struct {
	MovimientosMesActual *struct {
		Movimientos []movement `json:"movimientos"`
	} `json:"movimientosMesActual"`
}

func (c *Client) fetchAccountMovements(ctx context.Context, stream domain.Stream) (domain.Snapshot, error) {
	path := fmt.Sprintf("cuentas/1/%s/mesActual", url.PathEscape(stream.AccountID))
	data, err := c.fetchData(ctx, stream, path)
	if err != nil {
		return nil, err
	}

	var payload currentMonth
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("decode movements: %w", err)}
	}
	if payload.MovimientosMesActual == nil {
		return nil, &domain.FetchStructureError{Stream: stream.Name, Err: errors.New("missing movimientosMesActual")}
	}

	snap := make(domain.Snapshot, 0, len(payload.MovimientosMesActual.Movimientos))
	for i, m := range payload.MovimientosMesActual.Movimientos {
		date, err := m.Fecha.civil()
		if err != nil {
			return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("movement %d: %w", i, err)}
		}
		if m.Importe == nil {
			return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("movement %d: missing importe", i)}
		}
		snap = append(snap, domain.ItauAccountMovement{
			Date:                  date,
			Type:                  m.Tipo,
			Description:           m.Descripcion,
			Amount:                *m.Importe,
			Currency:              stream.Currency,
			AdditionalDescription: m.DescripcionAdicional,
			FormCode:              int(m.CodigoFormulario),
			Balance:               m.Saldo,
		})
	}
	return snap, nil
}

type authorization struct {
	Fecha   epochDate `json:"fecha"`
	Tarjeta struct {
		Hash string `json:"hash"`
	} `json:"tarjeta"`
	Hora           looseString      `json:"hora"`
	NombreComercio string           `json:"nombreComercio"`
	Tipo           string           `json:"tipo"`
	Moneda         string           `json:"moneda"`
	Importe        *decimal.Decimal `json:"importe"`
	NroReserva     looseString      `json:"nroReserva"`
	NroRespuesta   looseInt         `json:"nroRespuesta"`
	Etiqueta       string           `json:"etiqueta"`
	Aprobada       bool             `json:"aprobada"`
}

type pendingAuthorizations struct {
	Datos *struct {
		DatosAutorizaciones *struct {
			Autorizaciones []authorization `json:"autorizaciones"`
		} `json:"datosAutorizaciones"`
	} `json:"datos"`
}

func (c *Client) fetchCardAuthorizations(ctx context.Context, stream domain.Stream) (domain.Snapshot, error) {
	path := fmt.Sprintf("tarjetas/credito/%s/autorizaciones_pendientes", url.PathEscape(stream.AccountID))
	data, err := c.fetchData(ctx, stream, path)
	if err != nil {
		return nil, err
	}

	var payload pendingAuthorizations
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("decode authorizations: %w", err)}
	}
	if payload.Datos == nil || payload.Datos.DatosAutorizaciones == nil {
		return nil, &domain.FetchStructureError{Stream: stream.Name, Err: errors.New("missing datos.datosAutorizaciones")}
	}

	auths := payload.Datos.DatosAutorizaciones.Autorizaciones
	snap := make(domain.Snapshot, 0, len(auths))
	for i, a := range auths {
		date, err := a.Fecha.civil()
		if err != nil {
			return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("authorization %d: %w", i, err)}
		}
		if a.Importe == nil {
			return nil, &domain.FetchStructureError{Stream: stream.Name, Err: fmt.Errorf("authorization %d: missing importe", i)}
		}
		snap = append(snap, domain.ItauCardAuthorization{
			Date:           date,
			Card:           a.Tarjeta.Hash,
			Merchant:       a.NombreComercio,
			Type:           a.Tipo,
			Currency:       currencyCode(a.Moneda),
			Amount:         *a.Importe,
			Time:           string(a.Hora),
			Reservation:    string(a.NroReserva),
			ResponseNumber: int(a.NroRespuesta),
			Label:          a.Etiqueta,
			Approved:       a.Aprobada,
		})
	}
	return snap, nil
}
