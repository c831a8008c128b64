package server_handlers

const CtxRequestID = "__req_id"
