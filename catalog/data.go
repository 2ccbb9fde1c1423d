package catalog

import "github.com/warp/wallet-ledger/ledger"

// Group is one category of the default taxonomy.
type Group struct {
	Type          ledger.TransactionType
	Name          string
	Subcategories []string
}

// Default is the taxonomy every ledger starts with. It carries the reserved
// subcategories the engine resolves at startup.
var Default = []Group{
	{Type: ledger.TxIncome, Name: "Beneficios Gubernamentales", Subcategories: []string{
		"Asistencia social",
		"Beneficios por incapacidad",
		"Compensacion por desempleo",
	}},
	{Type: ledger.TxIncome, Name: "Empleo Primario", Subcategories: []string{
		"Bonos y Comisiones",
		"Propinas y gratificaciones",
		"Salario",
	}},
	{Type: ledger.TxIncome, Name: "Ingresos de alquiler", Subcategories: []string{
		"Alquiler de inmuebles",
		"Arrendamiento de equipo o vehiculo",
	}},
	{Type: ledger.TxIncome, Name: "Ingresos de Inversion", Subcategories: []string{
		"Dividendos",
		"Ganancias de capital",
		"Intereses",
	}},
	{Type: ledger.TxIncome, Name: "Ingreso de jubilacion", Subcategories: []string{
		"Pensiones",
		"Seguro social",
	}},
	{Type: ledger.TxIncome, Name: "Ingresos Diversos", Subcategories: []string{
		"Ganancias de loteria o apuestas",
		"Ventas de articulos personales",
		ledger.SubcategoryInternalTransfer,
	}},
	{Type: ledger.TxIncome, Name: "Otros ingresos", Subcategories: []string{
		"Becas y subvenciones",
		"Herencia",
		"Obsequios",
		"Pension alimenticia o manutencion infantil",
	}},
	{Type: ledger.TxIncome, Name: "Reembolsos", Subcategories: []string{
		"Reembolsos de gastos",
		"Reembolsos de seguro",
	}},
	{Type: ledger.TxIncome, Name: "Trabajo Independiente", Subcategories: []string{
		"Ingresos comerciales",
		"Trabajo por contrato",
	}},
	{Type: ledger.TxExpense, Name: "Ahorros e inversiones", Subcategories: []string{
		"Acciones y bonos",
		"Ahorros para educacion",
		"Depositos de cuentas de ahorro",
		"Dispositivos y Articulos Crypto",
		"Divisas Crypto",
		"Fondo de emergencia",
		"Fondo de Jubilacion",
	}},
	{Type: ledger.TxExpense, Name: "Alimentos", Subcategories: []string{
		"Alcohol y bebidas",
		"Comida para llevar y domicilios",
		"Mercado de alimentos",
		"Otros Alimentos",
		"Salidas a Comer",
	}},
	{Type: ledger.TxExpense, Name: "Alojamiento", Subcategories: []string{
		"Alquiler de inmueble",
		"Hipoteca",
		"Impuestos de Hogar o Renta",
		"Mantenimiento y Reparaciones",
		"Mejoras para el hogar",
		"Muebles y Electrodomesticos",
	}},
	{Type: ledger.TxExpense, Name: "Articulos de uso domestico", Subcategories: []string{
		"Articulos de cocina",
		"Articulos de papel",
		"Herramientas de mantenimiento del hogar",
		"Productos de limpieza",
	}},
	{Type: ledger.TxExpense, Name: "Cuidado de la salud", Subcategories: []string{
		"Articulos de uso intimo",
		"Contribuciones a cuenta de ahorros para salud",
		"Cuidado de la vision",
		"Cuidado dental",
		"Cuidado de la piel",
		"Medicina sin receta",
		"Primas de seguros medicos",
		"Recetas y Medicamentos",
		"Visitas al medico",
	}},
	{Type: ledger.TxExpense, Name: "Cuidado de niños", Subcategories: []string{
		"Guarderia y niñera",
		"Manutencion de los hijos",
	}},
	{Type: ledger.TxExpense, Name: "Cuidado de mascotas", Subcategories: []string{
		"Aseo de mascotas",
		"Atencion veterinaria",
		"Comida y suministros",
		"Entrenamiento",
		"Guarderia y Hospedaje",
		"Juguetes y Entretenimiento",
		"Licencias para mascotas",
		"Otros Gastos de mascotas",
		"Seguro para mascotas",
	}},
	{Type: ledger.TxExpense, Name: "Deportes y Fitness", Subcategories: []string{
		"Clases de fitness",
		"Entrenamiento personal (costos asociados a la contratacion de un entrenador personal)",
		"Equipamiento del hogar",
		"Equipamiento deportivo",
		"Membresia de Gimnasio",
		"Ropa y Calzado",
		"Suplementos nutricionales",
		"Tarifas de equipos deportivos",
		"Tarifas de inscripcion a eventos",
	}},
	{Type: ledger.TxExpense, Name: "Educacion", Subcategories: []string{
		"Cuotas de organizacion estudiantil",
		"Diplomados y Cursos",
		"Educacion continua",
		"Fotocopias y Articulos Impresos",
		"Libros y materiales",
		"Matricula y cuotas",
		"Suministros escolares",
	}},
	{Type: ledger.TxExpense, Name: "Entretenimiento", Subcategories: []string{
		"Cine y Teatro",
		"Conciertos y Eventos en vivo",
		"Eventos sociales",
		"Juegos y juguetes",
		"Pasatiempos y manualidades",
		"Subscripciones (servicios de streaming, revistas)",
	}},
	{Type: ledger.TxExpense, Name: "Gastos de Trabajo", Subcategories: []string{
		"Contribuciones a Salud y Pension",
		"Educacion y Entrenamiento",
		"Equipos de salud y seguridad",
		"Gastos de comunicacion",
		"Gastos de viaje",
		"Gastos vehiculares",
		"Herramientas profesionales y equipos",
		"Impuesto sobre la renta",
		"Licencias y permisos",
		"Mantenimiento y reparaciones de equipo de trabajo",
		"Muebleria relacionada al trabajo",
		"Publicidad y Mercadeo",
		"Renta de oficina y gastos relacionados",
		"Seguro de negocio",
		"Servicios Legales y Profesionales",
		"Subscripciones y membresias",
		"Suministros y equipos",
		"Technologia y Electronicos",
		"Utilidades para el trabajo",
	}},
	{Type: ledger.TxExpense, Name: "Gastos Financieros", Subcategories: []string{
		"Cambio de divisas",
		ledger.SubcategoryBankFees,
		"Cuotas de Manejo",
		"Franqueo y envio (remesas)",
		ledger.SubcategoryInternalTransfer,
	}},
	{Type: ledger.TxExpense, Name: "Miscelaneos", Subcategories: []string{
		"Compras Unicas",
		"Gastos imprevistos",
		"Gastos Impulsivos",
		"Otros Gastos",
		"Retiros en Efectivo",
	}},
	{Type: ledger.TxExpense, Name: "Pagos de deuda", Subcategories: []string{
		"Otros Prestamos",
		"Pagos de tarjeta de credito",
		"Prestamos estudiantiles",
		"Prestamos personales",
	}},
	{Type: ledger.TxExpense, Name: "Regalos y Donaciones", Subcategories: []string{
		"Bodas y ocaciones especiales",
		"Donaciones de caridad",
		"Regalos de cumpleaños y dias festivos",
		"Soporte Financiero",
	}},
	{Type: ledger.TxExpense, Name: "Ropa y cuidado personal", Subcategories: []string{
		"Articulos de aseo personal",
		"Cortes de pelo y aseo",
		"Cosmeticos y articulos de belleza",
		"Cuidado de la piel",
		"Lavanderia y tintoreria",
		"Ropas y zapatos",
	}},
	{Type: ledger.TxExpense, Name: "Seguros", Subcategories: []string{
		"Otros seguros",
		"Seguro de auto",
		"Seguro de hogar",
		"Seguro de incapacidad",
		"Seguro de salud",
		"Seguro de vida",
	}},
	{Type: ledger.TxExpense, Name: "Servicios Profesionales", Subcategories: []string{
		"Honorarios Legales",
		"Preparacion de contabilidad y impuestos",
		"Servicios de consultoria",
	}},
	{Type: ledger.TxExpense, Name: "Tecnologia y Servicios Digitales", Subcategories: []string{
		"Alojamiento web y dominios",
		"Compras de aplicaciones",
		"Hardware y dispositivos (telefonos, computadoras)",
		"Suscripcion de software (almacenamiento en la nuve, administrador de contraseñas)",
	}},
	{Type: ledger.TxExpense, Name: "Transporte", Subcategories: []string{
		"Cumbustible",
		"Mantenimiento y reparacion de vehiculo",
		"Pago de coche",
		"Registro y licencia",
		"Tarifas de estacionamiento",
		"Taxis y viajes compartidos",
		"Transporte publico",
	}},
	{Type: ledger.TxExpense, Name: "Utilidades", Subcategories: []string{
		"Agua y Alcantarillado",
		"Electricidad",
		"Eliminacion de Residuos",
		"Gas",
		"Internet",
		"Telefonia Fija",
		"Telefonia Movil",
		"Television",
	}},
	{Type: ledger.TxExpense, Name: "Viajes", Subcategories: []string{
		"Alojamientos",
		"Alquiler de coches",
		"Excursiones y Actividades",
		"Gastos de vacaciones",
		"Pasaje aereo",
		"Pasaje flota",
		"Seguro de viaje",
		"Souvenires",
	}},
	{Type: ledger.TxAdjustment, Name: "Ajustes", Subcategories: []string{
		ledger.SubcategoryWalletAdjustment,
		ledger.SubcategoryInitialBalance,
	}},
}
